package memory

import (
	"context"
	"sync"

	"ironflex/backend/internal/reaction"
)

type targetKey struct {
	t  reaction.TargetType
	id string
}

type voteKey struct {
	targetKey
	userID string
}

// ReactionStore is an in-process reaction.Store. WithinTx serializes callers
// but does not roll back, which is how a store without transactions behaves.
type ReactionStore struct {
	txMu       sync.Mutex
	mu         sync.Mutex
	targets    map[targetKey]reaction.Counts
	votes      map[voteKey]reaction.VoteState
	counterErr error
}

// NewReactionStore returns an empty store
func NewReactionStore() *ReactionStore {
	return &ReactionStore{
		targets: make(map[targetKey]reaction.Counts),
		votes:   make(map[voteKey]reaction.VoteState),
	}
}

// AddTarget registers a votable entity with starting counters
func (s *ReactionStore) AddTarget(t reaction.TargetType, id string, c reaction.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetKey{t, id}] = c
}

// FailCounterWrites makes every later ApplyCounterDelta return err; nil restores it
func (s *ReactionStore) FailCounterWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterErr = err
}

// TargetExists implements reaction.Store
func (s *ReactionStore) TargetExists(_ context.Context, t reaction.TargetType, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[targetKey{t, id}]
	return ok, nil
}

// GetVote implements reaction.Store
func (s *ReactionStore) GetVote(_ context.Context, t reaction.TargetType, id, userID string) (reaction.VoteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.votes[voteKey{targetKey{t, id}, userID}]; ok {
		return v, nil
	}
	return reaction.StateNone, nil
}

// PutVote implements reaction.Store
func (s *ReactionStore) PutVote(_ context.Context, t reaction.TargetType, id, userID string, state reaction.VoteState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{targetKey{t, id}, userID}] = state
	return nil
}

// DeleteVote implements reaction.Store
func (s *ReactionStore) DeleteVote(_ context.Context, t reaction.TargetType, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, voteKey{targetKey{t, id}, userID})
	return nil
}

// ApplyCounterDelta implements reaction.Store
func (s *ReactionStore) ApplyCounterDelta(_ context.Context, t reaction.TargetType, id string, field reaction.CounterField, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterErr != nil {
		return s.counterErr
	}

	k := targetKey{t, id}
	c, ok := s.targets[k]
	if !ok {
		return reaction.ErrTargetNotFound
	}
	switch field {
	case reaction.FieldLikes:
		c.Likes = reaction.ApplyDelta(c.Likes, delta)
	case reaction.FieldDislikes:
		c.Dislikes = reaction.ApplyDelta(c.Dislikes, delta)
	}
	s.targets[k] = c
	return nil
}

// Counters implements reaction.Store
func (s *ReactionStore) Counters(_ context.Context, t reaction.TargetType, id string) (reaction.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.targets[targetKey{t, id}]
	if !ok {
		return reaction.Counts{}, reaction.ErrTargetNotFound
	}
	return c, nil
}

// CountVotes implements reaction.Store
func (s *ReactionStore) CountVotes(_ context.Context, t reaction.TargetType, id string) (reaction.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c reaction.Counts
	target := targetKey{t, id}
	for k, v := range s.votes {
		if k.targetKey != target {
			continue
		}
		switch v {
		case reaction.StateLiked:
			c.Likes++
		case reaction.StateDisliked:
			c.Dislikes++
		}
	}
	return c, nil
}

// SetCounters implements reaction.Store
func (s *ReactionStore) SetCounters(_ context.Context, t reaction.TargetType, id string, c reaction.Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetKey{t, id}] = c
	return nil
}

// WithinTx implements reaction.Store
func (s *ReactionStore) WithinTx(_ context.Context, fn func(reaction.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}
