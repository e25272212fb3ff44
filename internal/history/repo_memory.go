package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores events in memory and is safe for concurrent use. It backs
// dev deployments without a DATABASE_URL and the handler tests.
type MemoryRepo struct {
	mu         sync.RWMutex
	byIdentity map[string][]Event
	// Now overrides the commit clock, for tests.
	Now func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byIdentity: make(map[string][]Event)}
}

func (r *MemoryRepo) clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// CountSince counts events for identity with CreatedAt at or after since.
func (r *MemoryRepo) CountSince(ctx context.Context, identity string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if identity == "" {
		return 0, ErrMissingIdentity
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.byIdentity[identity] {
		if !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Append stores the event with a fresh ID and commit timestamp.
func (r *MemoryRepo) Append(ctx context.Context, event Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if event.Identity == "" {
		return Event{}, ErrMissingIdentity
	}
	event.ID = uuid.NewString()
	event.CreatedAt = r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byIdentity[event.Identity] = append(r.byIdentity[event.Identity], event)
	return event, nil
}

// ListByIdentity returns events for identity, newest first, with limit/offset.
func (r *MemoryRepo) ListByIdentity(ctx context.Context, identity string, limit, offset int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, ErrMissingIdentity
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	stored := r.byIdentity[identity]
	events := make([]Event, len(stored))
	copy(events, stored)
	r.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if offset >= len(events) {
		return []Event{}, nil
	}
	end := len(events)
	if offset+limit < end {
		end = offset + limit
	}
	return events[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
