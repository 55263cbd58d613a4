package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		current VoteState
		r       Reaction
		next    VoteState
		delta   Delta
	}{
		{StateNone, Like, StateLiked, Delta{Likes: 1}},
		{StateNone, Dislike, StateDisliked, Delta{Dislikes: 1}},
		{StateLiked, Like, StateNone, Delta{Likes: -1}},
		{StateLiked, Dislike, StateDisliked, Delta{Likes: -1, Dislikes: 1}},
		{StateDisliked, Like, StateLiked, Delta{Likes: 1, Dislikes: -1}},
		{StateDisliked, Dislike, StateNone, Delta{Dislikes: -1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"+"+string(tt.r), func(t *testing.T) {
			next, delta := Transition(tt.current, tt.r)
			assert.Equal(t, tt.next, next)
			assert.Equal(t, tt.delta, delta)
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, StateNone, Fold())
	assert.Equal(t, StateNone, Fold(Like, Like))
	assert.Equal(t, StateDisliked, Fold(Like, Dislike))
	assert.Equal(t, StateNone, Fold(Like, Dislike, Dislike))
	assert.Equal(t, StateLiked, Fold(Dislike, Like, Like, Like))
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), ApplyDelta(0, -1))
	assert.Equal(t, int64(4), ApplyDelta(5, -1))
	assert.Equal(t, int64(6), ApplyDelta(5, 1))
	assert.Equal(t, Counts{Likes: 0, Dislikes: 1}, Counts{}.Add(Delta{Likes: -1, Dislikes: 1}))
}

func TestParse(t *testing.T) {
	for _, tt := range TargetTypes {
		got, err := ParseTargetType(string(tt))
		assert.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	_, err := ParseTargetType("profile")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = ParseReaction("love")
	assert.ErrorIs(t, err, ErrInvalidReaction)
}
