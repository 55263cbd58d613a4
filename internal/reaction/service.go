package reaction

import (
	"context"
	"fmt"

	"ironflex/backend/internal/auth"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// Result is the outcome of a toggle or a state read
type Result struct {
	TargetType TargetType `json:"targetType"`
	TargetID   string     `json:"targetId"`
	State      VoteState  `json:"userVote"`
	Likes      int64      `json:"likes"`
	Dislikes   int64      `json:"dislikes"`
	Delta      Delta      `json:"-"`
}

// Service applies vote toggles
type Service struct {
	store Store
	log   *logger.Logger
	votes *prometheus.CounterVec
}

// NewService creates a vote service. votes may be nil.
func NewService(store Store, log *logger.Logger, votes *prometheus.CounterVec) *Service {
	return &Service{store: store, log: log, votes: votes}
}

func validate(t TargetType, id string) error {
	if !t.Valid() {
		return ErrInvalidTarget
	}
	if id == "" {
		return ErrTargetNotFound
	}
	return nil
}

// Toggle applies reaction r by user to the target and returns the new state
// with the counters read back after the update.
//
// The current vote is always re-read from the store, so a retried request
// toggles instead of double counting. The vote is written before the
// counters; when the store has no transactions a failed counter write leaves
// the vote in place and surfaces as ErrCounterConflict for Recount to repair.
func (s *Service) Toggle(ctx context.Context, user *auth.User, t TargetType, id string, r Reaction) (*Result, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated
	}
	if err := validate(t, id); err != nil {
		return nil, err
	}
	if r != Like && r != Dislike {
		return nil, ErrInvalidReaction
	}

	var (
		result  *Result
		current VoteState
	)
	err := s.store.WithinTx(ctx, func(tx Store) error {
		ok, err := tx.TargetExists(ctx, t, id)
		if err != nil {
			return fmt.Errorf("check target: %w", err)
		}
		if !ok {
			return ErrTargetNotFound
		}

		current, err = tx.GetVote(ctx, t, id, user.ID)
		if err != nil {
			return fmt.Errorf("read vote: %w", err)
		}

		next, delta := Transition(current, r)

		if next == StateNone {
			err = tx.DeleteVote(ctx, t, id, user.ID)
		} else {
			err = tx.PutVote(ctx, t, id, user.ID, next)
		}
		if err != nil {
			return fmt.Errorf("write vote: %w", err)
		}

		if err := applyDelta(ctx, tx, t, id, delta); err != nil {
			return ErrCounterConflict.WithCause(err)
		}

		counts, err := tx.Counters(ctx, t, id)
		if err != nil {
			return fmt.Errorf("read counters: %w", err)
		}

		result = &Result{
			TargetType: t,
			TargetID:   id,
			State:      next,
			Likes:      counts.Likes,
			Dislikes:   counts.Dislikes,
			Delta:      delta,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.votes != nil {
		s.votes.WithLabelValues(string(t), string(current)+"->"+string(result.State)).Inc()
	}
	s.log.Debug("vote toggled",
		"target_type", t,
		"target_id", id,
		"user_id", user.ID,
		"from", current,
		"to", result.State,
	)

	return result, nil
}

func applyDelta(ctx context.Context, tx Store, t TargetType, id string, d Delta) error {
	if d.Likes != 0 {
		if err := tx.ApplyCounterDelta(ctx, t, id, FieldLikes, d.Likes); err != nil {
			return err
		}
	}
	if d.Dislikes != 0 {
		if err := tx.ApplyCounterDelta(ctx, t, id, FieldDislikes, d.Dislikes); err != nil {
			return err
		}
	}
	return nil
}

// State returns the user's vote and the target's counters
func (s *Service) State(ctx context.Context, user *auth.User, t TargetType, id string) (*Result, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated
	}
	if err := validate(t, id); err != nil {
		return nil, err
	}

	ok, err := s.store.TargetExists(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("check target: %w", err)
	}
	if !ok {
		return nil, ErrTargetNotFound
	}

	state, err := s.store.GetVote(ctx, t, id, user.ID)
	if err != nil {
		return nil, fmt.Errorf("read vote: %w", err)
	}
	counts, err := s.store.Counters(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}

	return &Result{
		TargetType: t,
		TargetID:   id,
		State:      state,
		Likes:      counts.Likes,
		Dislikes:   counts.Dislikes,
	}, nil
}

// Recount rebuilds the target's counters from its stored votes
func (s *Service) Recount(ctx context.Context, user *auth.User, t TargetType, id string) (Counts, error) {
	if user == nil {
		return Counts{}, apperrors.Unauthenticated
	}
	if !user.IsAdmin {
		return Counts{}, apperrors.AdminOnly
	}
	if err := validate(t, id); err != nil {
		return Counts{}, err
	}

	var counts Counts
	err := s.store.WithinTx(ctx, func(tx Store) error {
		ok, err := tx.TargetExists(ctx, t, id)
		if err != nil {
			return fmt.Errorf("check target: %w", err)
		}
		if !ok {
			return ErrTargetNotFound
		}

		counts, err = tx.CountVotes(ctx, t, id)
		if err != nil {
			return fmt.Errorf("count votes: %w", err)
		}
		return tx.SetCounters(ctx, t, id, counts)
	})
	if err != nil {
		return Counts{}, err
	}

	s.log.Info("counters recounted",
		"target_type", t,
		"target_id", id,
		"likes", counts.Likes,
		"dislikes", counts.Dislikes,
	)
	return counts, nil
}
