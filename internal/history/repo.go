package history

import (
	"context"
	"errors"
	"time"
)

// ErrMissingIdentity is returned when a caller passes an empty identity.
var ErrMissingIdentity = errors.New("identity is required")

// Repo is the append-only persistence surface of the ledger. There are
// deliberately no update or delete operations: events are written once after
// a successful analysis and only ever read after that.
type Repo interface {
	// CountSince returns the number of events for identity with
	// created_at >= since. The boundary is inclusive.
	CountSince(ctx context.Context, identity string, since time.Time) (int, error)
	// Append durably inserts the event, assigning its ID and commit
	// timestamp, and returns the stored event.
	Append(ctx context.Context, event Event) (Event, error)
	// ListByIdentity returns events for identity, newest first.
	ListByIdentity(ctx context.Context, identity string, limit, offset int) ([]Event, error)
}
