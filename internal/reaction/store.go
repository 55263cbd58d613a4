package reaction

import "context"

// CounterField selects one of a target's two counters
type CounterField string

// Counter fields, named after their columns
const (
	FieldLikes    CounterField = "likes"
	FieldDislikes CounterField = "dislikes"
)

// Store persists votes and target counters
type Store interface {
	// TargetExists reports whether the target row exists
	TargetExists(ctx context.Context, t TargetType, id string) (bool, error)
	// GetVote returns StateNone when the user has no vote
	GetVote(ctx context.Context, t TargetType, id, userID string) (VoteState, error)
	// PutVote creates or overwrites the user's vote
	PutVote(ctx context.Context, t TargetType, id, userID string, state VoteState) error
	DeleteVote(ctx context.Context, t TargetType, id, userID string) error
	// ApplyCounterDelta adds delta to one counter, clamped at zero
	ApplyCounterDelta(ctx context.Context, t TargetType, id string, field CounterField, delta int64) error
	Counters(ctx context.Context, t TargetType, id string) (Counts, error)
	// CountVotes derives counts from the stored votes
	CountVotes(ctx context.Context, t TargetType, id string) (Counts, error)
	SetCounters(ctx context.Context, t TargetType, id string, c Counts) error
	// WithinTx runs fn against a transactional view of the store. Stores
	// without transactions run fn directly against themselves.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
