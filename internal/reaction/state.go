package reaction

import (
	"fmt"

	apperrors "ironflex/backend/pkg/errors"
)

// TargetType names one of the entity kinds users can vote on
type TargetType string

// Target kinds
const (
	TargetTopic    TargetType = "topic"
	TargetPost     TargetType = "post"
	TargetArticle  TargetType = "article"
	TargetTraining TargetType = "training"
	TargetComment  TargetType = "comment"
)

// TargetTypes lists every valid target kind
var TargetTypes = []TargetType{TargetTopic, TargetPost, TargetArticle, TargetTraining, TargetComment}

// Valid reports whether t is a known target kind
func (t TargetType) Valid() bool {
	switch t {
	case TargetTopic, TargetPost, TargetArticle, TargetTraining, TargetComment:
		return true
	}
	return false
}

// ParseTargetType accepts the singular kind name
func ParseTargetType(s string) (TargetType, error) {
	t := TargetType(s)
	if !t.Valid() {
		return "", ErrInvalidTarget.WithDetails(fmt.Sprintf("unknown target type %q", s))
	}
	return t, nil
}

// Reaction is what the user asked for
type Reaction string

// Reactions
const (
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
)

// ParseReaction validates a reaction string
func ParseReaction(s string) (Reaction, error) {
	r := Reaction(s)
	if r != Like && r != Dislike {
		return "", ErrInvalidReaction
	}
	return r, nil
}

// VoteState is a user's current vote on a target
type VoteState string

// Vote states. The non-empty states double as the stored vote type.
const (
	StateNone     VoteState = "none"
	StateLiked    VoteState = "like"
	StateDisliked VoteState = "dislike"
)

// Delta is the change applied to a target's counters by one transition
type Delta struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Counts are a target's counter values
type Counts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Add applies d to c with both counters floored at zero
func (c Counts) Add(d Delta) Counts {
	return Counts{
		Likes:    ApplyDelta(c.Likes, d.Likes),
		Dislikes: ApplyDelta(c.Dislikes, d.Dislikes),
	}
}

// Domain errors
var (
	ErrInvalidTarget   = apperrors.NewBadRequestError("INVALID_TARGET", "Unknown target type")
	ErrInvalidReaction = apperrors.NewBadRequestError("INVALID_REACTION", "Reaction must be like or dislike")
	ErrTargetNotFound  = apperrors.NewNotFoundError("NOT_FOUND", "Target not found")
	ErrCounterConflict = apperrors.NewConflictError("CONFLICT", "Vote was stored but the counters could not be updated")
)

// Transition computes the next state and counter delta for reaction r.
// Repeating the current reaction toggles it off.
func Transition(current VoteState, r Reaction) (VoteState, Delta) {
	switch current {
	case StateLiked:
		if r == Like {
			return StateNone, Delta{Likes: -1}
		}
		return StateDisliked, Delta{Likes: -1, Dislikes: 1}
	case StateDisliked:
		if r == Dislike {
			return StateNone, Delta{Dislikes: -1}
		}
		return StateLiked, Delta{Likes: 1, Dislikes: -1}
	default:
		if r == Like {
			return StateLiked, Delta{Likes: 1}
		}
		return StateDisliked, Delta{Dislikes: 1}
	}
}

// Fold replays reactions from StateNone and returns the final state
func Fold(reactions ...Reaction) VoteState {
	state := StateNone
	for _, r := range reactions {
		state, _ = Transition(state, r)
	}
	return state
}

// ApplyDelta adds delta to counter, never going below zero
func ApplyDelta(counter, delta int64) int64 {
	return max(0, counter+delta)
}
