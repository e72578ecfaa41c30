package service

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
)

const DefaultActivityCapacity = 1000

// ActivityStore is a fixed-capacity, in-process event log. Events are kept in
// insertion order in a ring buffer; when full, each append overwrites the
// oldest slot. All reads return copies, newest first.
type ActivityStore struct {
	mu     sync.RWMutex
	buf    []domain.ActivityEvent
	head   int
	size   int
	nextID uint64
	now    func() time.Time
}

type ActivityStoreOption func(*ActivityStore)

func WithActivityCapacity(capacity int) ActivityStoreOption {
	return func(s *ActivityStore) {
		if capacity > 0 {
			s.buf = make([]domain.ActivityEvent, capacity)
		}
	}
}

func WithActivityClock(now func() time.Time) ActivityStoreOption {
	return func(s *ActivityStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewActivityStore(opts ...ActivityStoreOption) *ActivityStore {
	s := &ActivityStore{
		buf: make([]domain.ActivityEvent, DefaultActivityCapacity),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ActivityStore) Capacity() int { return len(s.buf) }

func (s *ActivityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *ActivityStore) Append(userID, action string, typ domain.ActivityType, metadata map[string]any) (domain.ActivityEvent, error) {
	if err := validateAppend(userID, action, typ); err != nil {
		observability.RecordActivityRejected(rejectReason(err))
		return domain.ActivityEvent{}, err
	}

	ev := domain.ActivityEvent{
		UserID:   userID,
		Action:   action,
		Type:     typ,
		Metadata: cloneMetadata(metadata),
	}

	s.mu.Lock()
	s.nextID++
	ev.ID = s.nextID
	ev.Timestamp = s.now().UTC()
	evicted := false
	if s.size == len(s.buf) {
		s.buf[s.head] = ev
		s.head = (s.head + 1) % len(s.buf)
		evicted = true
	} else {
		s.buf[(s.head+s.size)%len(s.buf)] = ev
		s.size++
	}
	s.mu.Unlock()

	observability.RecordActivityAppended(typ.String(), evicted)
	return cloneEvent(ev), nil
}

// Query returns the page [offset, offset+limit) of the newest-first view,
// restricted to filter when it is non-zero, and the filtered total.
func (s *ActivityStore) Query(limit, offset int, filter domain.ActivityType) ([]domain.ActivityEvent, int, error) {
	if limit <= 0 {
		return nil, 0, domain.NewValidationError("limit", "must be positive")
	}
	if offset < 0 {
		return nil, 0, domain.NewValidationError("offset", "must not be negative")
	}
	if !filter.IsZero() && !filter.Known() {
		return nil, 0, domain.NewValidationError("type", fmt.Sprintf("unknown activity type %q", filter.String()))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := make([]domain.ActivityEvent, 0, min(limit, s.size))
	total := 0
	for i := s.size - 1; i >= 0; i-- {
		ev := s.buf[(s.head+i)%len(s.buf)]
		if !filter.IsZero() && ev.Type != filter {
			continue
		}
		if total >= offset && len(page) < limit {
			page = append(page, cloneEvent(ev))
		}
		total++
	}
	return page, total, nil
}

func (s *ActivityStore) GetAll() []domain.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityEvent, 0, s.size)
	for i := s.size - 1; i >= 0; i-- {
		out = append(out, cloneEvent(s.buf[(s.head+i)%len(s.buf)]))
	}
	return out
}

func (s *ActivityStore) Summary() domain.ActivitySummary {
	return SummarizeActivity(s.GetAll())
}

func validateAppend(userID, action string, typ domain.ActivityType) error {
	if strings.TrimSpace(userID) == "" {
		return domain.NewValidationError("userId", "is required")
	}
	if strings.TrimSpace(action) == "" {
		return domain.NewValidationError("action", "is required")
	}
	if typ.IsZero() || strings.TrimSpace(typ.String()) == "" {
		return domain.NewValidationError("type", "is required")
	}
	if !typ.Known() {
		return domain.NewValidationError("type", fmt.Sprintf("unknown activity type %q", typ.String()))
	}
	return nil
}

func rejectReason(err error) string {
	if ve, ok := err.(*domain.ValidationError); ok {
		return ve.Field
	}
	return "unknown"
}

func cloneEvent(ev domain.ActivityEvent) domain.ActivityEvent {
	ev.Metadata = cloneMetadata(ev.Metadata)
	return ev
}

// cloneMetadata copies nested JSON-shaped values (objects and arrays) so no
// map or slice is shared between a caller and the store. Other values are
// copied by assignment.
func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
