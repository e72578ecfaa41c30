package service

import "github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"

// SummarizeActivity computes the dashboard aggregates over newest-first events.
func SummarizeActivity(events []domain.ActivityEvent) domain.ActivitySummary {
	summary := domain.ActivitySummary{
		Total:  len(events),
		ByType: make(map[string]int, len(domain.ActivityTypes())),
	}
	for _, t := range domain.ActivityTypes() {
		summary.ByType[t.String()] = 0
	}
	users := make(map[string]struct{})
	for _, ev := range events {
		summary.ByType[ev.Type.String()]++
		users[ev.UserID] = struct{}{}
		if summary.LatestAt == nil || ev.Timestamp.After(*summary.LatestAt) {
			ts := ev.Timestamp
			summary.LatestAt = &ts
		}
	}
	summary.UniqueUsers = len(users)
	return summary
}
