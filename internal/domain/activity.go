package domain

import (
	"strings"
	"time"
)

// ActivityType is the closed set of event tags. Values outside the set parse to
// an unknown variant that keeps the raw input.
type ActivityType struct {
	name  string
	known bool
}

var (
	ActivityLogin        = ActivityType{name: "login", known: true}
	ActivitySignup       = ActivityType{name: "signup", known: true}
	ActivityPropertyView = ActivityType{name: "property_view", known: true}
	ActivityCarView      = ActivityType{name: "car_view", known: true}
	ActivityInquiry      = ActivityType{name: "inquiry", known: true}
	ActivityPurchase     = ActivityType{name: "purchase", known: true}
	ActivityLogout       = ActivityType{name: "logout", known: true}
)

var activityTypes = []ActivityType{
	ActivityLogin,
	ActivitySignup,
	ActivityPropertyView,
	ActivityCarView,
	ActivityInquiry,
	ActivityPurchase,
	ActivityLogout,
}

func ActivityTypes() []ActivityType {
	return append([]ActivityType(nil), activityTypes...)
}

func UnknownActivityType(raw string) ActivityType {
	return ActivityType{name: raw}
}

func ParseActivityType(raw string) ActivityType {
	v := strings.TrimSpace(strings.ToLower(raw))
	for _, t := range activityTypes {
		if t.name == v {
			return t
		}
	}
	return UnknownActivityType(raw)
}

func (t ActivityType) String() string { return t.name }

func (t ActivityType) Known() bool { return t.known }

func (t ActivityType) IsZero() bool { return t.name == "" && !t.known }

func (t ActivityType) MarshalText() ([]byte, error) {
	return []byte(t.name), nil
}

func (t *ActivityType) UnmarshalText(b []byte) error {
	*t = ParseActivityType(string(b))
	return nil
}

type ActivityEvent struct {
	ID        uint64         `json:"id"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Type      ActivityType   `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ActivitySummary struct {
	Total       int            `json:"total"`
	UniqueUsers int            `json:"uniqueUsers"`
	ByType      map[string]int `json:"byType"`
	LatestAt    *time.Time     `json:"latestAt,omitempty"`
}
