package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func msg(id string, minutes int) Message {
	return Message{ID: id, AuthorID: "u-" + id, AuthorName: "User " + id, Body: "body " + id, CreatedAt: at(minutes)}
}

// fakeStore serves history from a sorted slice and records calls
type fakeStore struct {
	mu       sync.Mutex
	history  []Message
	listErr  error
	sendErr  error
	sent     []Draft
	deleted  []string
	calls    int
	gate     chan struct{}
	nextID   int
	sendTime time.Time
}

func (s *fakeStore) ListMessages(_ context.Context, before *time.Time, limit int) (Page, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return Page{}, s.listErr
	}
	var out []Message
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && !s.history[i].CreatedAt.Before(*before) {
			continue
		}
		out = append(out, s.history[i])
	}
	return Page{Messages: out, HasMore: len(out) == limit}, nil
}

func (s *fakeStore) SendMessage(_ context.Context, d Draft) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, d)
	if s.sendErr != nil {
		return Message{}, s.sendErr
	}
	s.nextID++
	return Message{
		ID:        fmt.Sprintf("srv-%d", s.nextID),
		AuthorID:  "me",
		Body:      d.Body,
		MediaRefs: d.MediaRefs,
		CreatedAt: s.sendTime,
	}, nil
}

func (s *fakeStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeSubscription struct {
	mu           sync.Mutex
	handle       func(Event)
	unsubscribed bool
}

func (f *fakeSubscription) Subscribe(_ context.Context, handle func(Event)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handle = handle
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}, nil
}

func (f *fakeSubscription) emit(ev Event) {
	f.mu.Lock()
	handle := f.handle
	f.mu.Unlock()
	handle(ev)
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertSortedUnique(t *testing.T, msgs []Message) {
	t.Helper()
	assert.True(t, sort.SliceIsSorted(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	}), "not sorted: %v", ids(msgs))
	seen := map[string]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
	}
}

var me = Author{ID: "me", Name: "Me"}

func TestInitialLoadReversesAndFlagsMore(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0), msg("b", 1), msg("c", 2)}}

	r := NewReconciler(store, me, WithPageSize(2))
	require.NoError(t, r.InitialLoad(context.Background()))
	assert.Equal(t, []string{"b", "c"}, ids(r.Messages()))
	assert.True(t, r.HasMoreOlder())

	r = NewReconciler(store, me, WithPageSize(5))
	require.NoError(t, r.InitialLoad(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Messages()))
	assert.False(t, r.HasMoreOlder())
}

func TestLoadOlderPrependsPage(t *testing.T) {
	store := &fakeStore{history: []Message{
		msg("0957", -3), msg("0958", -2), msg("0959", -1),
		msg("1000", 0), msg("1001", 1), msg("1002", 2),
	}}
	r := NewReconciler(store, me, WithPageSize(3))
	require.NoError(t, r.InitialLoad(context.Background()))
	require.Equal(t, []string{"1000", "1001", "1002"}, ids(r.Messages()))

	// Older page of exactly two, as with a page size of two
	r.pageSize = 2
	res, err := r.LoadOlder(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"0958", "0959", "1000", "1001", "1002"}, ids(r.Messages()))
	assert.Equal(t, LoadResult{Prepended: 2, BeforeCount: 3, AfterCount: 5}, res)
	assert.True(t, r.HasMoreOlder())

	res, err = r.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Prepended)
	assert.False(t, r.HasMoreOlder())

	calls := store.calls
	res, err = r.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoadResult{}, res)
	assert.Equal(t, calls, store.calls)
}

func TestLoadFailureLeavesStateUntouched(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0), msg("b", 1)}}
	r := NewReconciler(store, me, WithPageSize(1))
	require.NoError(t, r.InitialLoad(context.Background()))

	store.listErr = errors.New("offline")
	_, err := r.LoadOlder(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"b"}, ids(r.Messages()))
	assert.True(t, r.HasMoreOlder())
	assert.False(t, r.Loading())

	assert.Error(t, r.InitialLoad(context.Background()))
	assert.Equal(t, []string{"b"}, ids(r.Messages()))
}

func TestLoadOlderIsGuardedWhileInFlight(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0), msg("b", 1), msg("c", 2)}}
	r := NewReconciler(store, me, WithPageSize(1))
	require.NoError(t, r.InitialLoad(context.Background()))

	store.mu.Lock()
	store.gate = make(chan struct{})
	store.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.LoadOlder(context.Background())
		assert.NoError(t, err)
	}()
	require.Eventually(t, r.Loading, time.Second, time.Millisecond)

	res, err := r.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoadResult{}, res)
	assert.ErrorIs(t, r.InitialLoad(context.Background()), ErrLoadInFlight)

	close(store.gate)
	<-done
	assert.Equal(t, []string{"b", "c"}, ids(r.Messages()))
	assert.Equal(t, 2, store.calls)
}

func TestRemoteInsertsStaySortedAndUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var history []Message
		for i := 0; i < 10; i++ {
			history = append(history, msg(fmt.Sprintf("h%d", i), i))
		}
		r := NewReconciler(&fakeStore{history: history}, me, WithPageSize(5))
		require.NoError(t, r.InitialLoad(context.Background()))

		minute := 9
		var live []Message
		for i := 0; i < 20; i++ {
			minute += rng.Intn(2)
			m := msg(fmt.Sprintf("l%d", i), minute)
			live = append(live, m)
			r.OnRemoteInsert(m)
			if rng.Intn(3) == 0 {
				r.OnRemoteInsert(live[rng.Intn(len(live))])
			}
		}

		got := r.Messages()
		assertSortedUnique(t, got)
		assert.Len(t, got, 25)
	}
}

func TestRemoteInsertOutOfOrderKeepsOrder(t *testing.T) {
	r := NewReconciler(&fakeStore{history: []Message{msg("a", 0), msg("c", 2)}}, me)
	require.NoError(t, r.InitialLoad(context.Background()))

	r.OnRemoteInsert(msg("b", 1))
	r.OnRemoteInsert(msg("b2", 1))
	r.OnRemoteInsert(msg("b", 1))

	assert.Equal(t, []string{"a", "b", "b2", "c"}, ids(r.Messages()))
}

func TestRemoteDeleteIsIdempotent(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0), msg("b", 1)}}
	r := NewReconciler(store, me)
	require.NoError(t, r.InitialLoad(context.Background()))

	require.NoError(t, r.AdminDelete(context.Background(), "a"))
	assert.Equal(t, []string{"a"}, store.deleted)
	assert.Equal(t, []string{"b"}, ids(r.Messages()))

	r.OnRemoteDelete("a")
	r.OnRemoteDelete("missing")
	assert.Equal(t, []string{"b"}, ids(r.Messages()))
}

func TestOptimisticSendConfirmed(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0)}}
	r := NewReconciler(store, me, WithClock(func() time.Time { return at(5) }))
	require.NoError(t, r.InitialLoad(context.Background()))

	tempID := r.SendOptimistic(Draft{Body: "hello"})
	assert.True(t, IsTempID(tempID))
	require.Len(t, r.Messages(), 2)
	echo := r.Messages()[1]
	assert.Equal(t, "me", echo.AuthorID)
	assert.Equal(t, at(5), echo.CreatedAt)
	assert.True(t, echo.Pending())

	confirmed := Message{ID: "srv-1", AuthorID: "me", Body: "hello", CreatedAt: at(4)}
	r.ConfirmSend(tempID, confirmed)

	got := r.Messages()
	assert.Equal(t, []string{"a", "srv-1"}, ids(got))
	assert.Equal(t, at(4), got[1].CreatedAt)

	r.OnRemoteInsert(confirmed)
	assert.Len(t, r.Messages(), 2)
}

func TestRemoteInsertConfirmsEcho(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me, WithClock(func() time.Time { return at(5) }))
	require.NoError(t, r.InitialLoad(context.Background()))

	tempID := r.SendOptimistic(Draft{Body: "same"})
	r.OnRemoteInsert(Message{ID: "other", AuthorID: "someone", Body: "same", CreatedAt: at(5)})
	confirmed := Message{ID: "srv-1", AuthorID: "me", Body: "same", CreatedAt: at(5)}
	r.OnRemoteInsert(confirmed)

	// The echo is replaced where it stood
	assert.Equal(t, []string{"srv-1", "other"}, ids(r.Messages()))

	// The HTTP response arrives after the live event
	r.ConfirmSend(tempID, confirmed)
	assert.Equal(t, []string{"srv-1", "other"}, ids(r.Messages()))
}

func TestLateConfirmDoesNotResurrectDeletedMessage(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me, WithClock(func() time.Time { return at(5) }))

	tempID := r.SendOptimistic(Draft{Body: "hi"})
	confirmed := Message{ID: "srv-1", AuthorID: "me", Body: "hi", CreatedAt: at(5)}
	r.OnRemoteInsert(confirmed)
	r.OnRemoteDelete("srv-1")
	require.Empty(t, r.Messages())

	r.ConfirmSend(tempID, confirmed)
	assert.Empty(t, r.Messages())

	// A replayed insert for the deleted id is ignored too
	r.OnRemoteInsert(confirmed)
	assert.Empty(t, r.Messages())
}

func TestConfirmAfterDeleteDropsEcho(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me, WithClock(func() time.Time { return at(5) }))

	tempID := r.SendOptimistic(Draft{Body: "hi"})
	r.OnRemoteDelete("srv-1")
	r.ConfirmSend(tempID, Message{ID: "srv-1", AuthorID: "me", Body: "hi", CreatedAt: at(5)})

	assert.Empty(t, r.Messages())
}

func TestConfirmAfterLookAlikeInsertKeepsBoth(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me, WithClock(func() time.Time { return at(5) }))

	first := r.SendOptimistic(Draft{Body: "hi"})
	// Another of my sessions posted the same text; it takes the echo's place
	r.OnRemoteInsert(Message{ID: "srv-0", AuthorID: "me", Body: "hi", CreatedAt: at(4)})
	r.ConfirmSend(first, Message{ID: "srv-1", AuthorID: "me", Body: "hi", CreatedAt: at(5)})

	assert.Equal(t, []string{"srv-0", "srv-1"}, ids(r.Messages()))
}

func TestConfirmSendDropsEchoWhenConfirmedPresent(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me)
	tempID := r.SendOptimistic(Draft{Body: "x"})

	// Live insert with a different body cannot match the echo
	r.OnRemoteInsert(Message{ID: "srv-1", AuthorID: "me", Body: "x (edited by server)", CreatedAt: at(0)})
	r.ConfirmSend(tempID, Message{ID: "srv-1", AuthorID: "me", Body: "x (edited by server)", CreatedAt: at(0)})

	assert.Equal(t, []string{"srv-1"}, ids(r.Messages()))
}

func TestSendRollsBackOnFailure(t *testing.T) {
	cause := errors.New("network down")
	store := &fakeStore{sendErr: cause}
	r := NewReconciler(store, me)

	var c Composer
	c.SetText("hello")
	c.ReplyTo(Message{ID: "q", AuthorName: "Bob", Body: "question"})
	require.NoError(t, c.AttachMedia("pic.png"))

	_, err := r.Send(context.Background(), &c)
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTempID(sendErr.TempID))

	for _, m := range r.Messages() {
		assert.NotEqual(t, sendErr.TempID, m.ID)
	}
	assert.Empty(t, r.Messages())
	// The text was cleared when the echo went out and stays cleared
	assert.Empty(t, c.Text())
	assert.Equal(t, []string{"pic.png"}, c.Media())
	assert.NotNil(t, c.Reply())
	assert.False(t, c.Sending())
}

func TestFailSendDoesNotTouchComposer(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me)
	var c Composer
	c.SetText("hello")

	tempID := r.SendOptimistic(c.Draft())
	err := r.FailSend(tempID, errors.New("boom"))

	assert.Error(t, err)
	assert.Empty(t, r.Messages())
	assert.Equal(t, "hello", c.Text())
}

func TestSendClearsComposerOnSuccess(t *testing.T) {
	store := &fakeStore{sendTime: at(1)}
	r := NewReconciler(store, me)

	var c Composer
	c.SetText("  ")
	_, err := r.Send(context.Background(), &c)
	assert.ErrorIs(t, err, ErrEmptyDraft)
	assert.Empty(t, store.sent)

	c.SetText("hello")
	c.ReplyTo(Message{ID: "q", AuthorName: "Bob", Body: "question"})
	require.NoError(t, c.AttachMedia("a.png"))

	confirmed, err := r.Send(context.Background(), &c)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", confirmed.ID)
	assert.Equal(t, []string{"srv-1"}, ids(r.Messages()))
	assert.Equal(t, "", c.Text())
	assert.Empty(t, c.Media())
	assert.Nil(t, c.Reply())

	require.Len(t, store.sent, 1)
	assert.Equal(t, "q", store.sent[0].ReplyRef.SourceMessageID)
}

func TestComposerGuardsDoubleSend(t *testing.T) {
	var c Composer
	c.SetText("once")
	_, err := c.begin()
	require.NoError(t, err)

	c.SetText("twice")
	_, err = c.begin()
	assert.ErrorIs(t, err, ErrSendInFlight)

	for i := 0; i < MaxMediaRefs; i++ {
		require.NoError(t, c.AttachMedia("m"))
	}
	assert.ErrorIs(t, c.AttachMedia("m"), ErrTooManyMedia)
}

func TestInitialLoadAgainKeepsPendingAndLive(t *testing.T) {
	store := &fakeStore{history: []Message{msg("a", 0), msg("b", 1)}}
	r := NewReconciler(store, me, WithClock(func() time.Time { return at(10) }))
	require.NoError(t, r.InitialLoad(context.Background()))

	tempID := r.SendOptimistic(Draft{Body: "pending"})
	r.OnRemoteInsert(msg("live", 5))

	// Reconnect: the server now also has a message we missed
	store.history = append(store.history, msg("missed", 3))
	require.NoError(t, r.InitialLoad(context.Background()))

	assert.Equal(t, []string{"a", "b", "missed", "live", tempID}, ids(r.Messages()))
}

func TestAttachReleaseStopsEvents(t *testing.T) {
	r := NewReconciler(&fakeStore{}, me)
	sub := &fakeSubscription{}

	release, err := r.Attach(context.Background(), sub)
	require.NoError(t, err)

	m := msg("a", 0)
	sub.emit(InsertEvent(m))
	assert.Equal(t, []string{"a"}, ids(r.Messages()))

	sub.emit(DeleteEvent("a"))
	assert.Empty(t, r.Messages())

	release()
	release()
	assert.True(t, sub.unsubscribed)

	sub.emit(InsertEvent(msg("b", 1)))
	assert.Empty(t, r.Messages())
}
