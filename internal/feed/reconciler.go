package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is used when no page size is configured
const DefaultPageSize = 50

// ErrLoadInFlight is returned by InitialLoad while another load is running
var ErrLoadInFlight = errors.New("feed: load already in flight")

// FeedStore is the remote side of the feed
type FeedStore interface {
	// ListMessages returns messages older than before, newest first
	ListMessages(ctx context.Context, before *time.Time, limit int) (Page, error)
	SendMessage(ctx context.Context, draft Draft) (Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// FeedSubscription delivers live events until the returned func is called
type FeedSubscription interface {
	Subscribe(ctx context.Context, handle func(Event)) (unsubscribe func(), err error)
}

// Author identifies the local user for optimistic echoes
type Author struct {
	ID     string
	Name   string
	Avatar *string
}

// LoadResult describes a prepend so the caller can keep its scroll anchor
type LoadResult struct {
	Prepended   int
	BeforeCount int
	AfterCount  int
}

// SendError reports a rolled back optimistic send
type SendError struct {
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s failed: %v", e.TempID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithPageSize sets the page size for InitialLoad and LoadOlder
func WithPageSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithClock overrides the time source used for optimistic echoes
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler keeps one ordered, duplicate-free view of the feed built from
// history pages, live events and local optimistic sends.
//
// The view is sorted ascending by CreatedAt. The one exception is ConfirmSend,
// which replaces an echo in place even if the server timestamp would sort it
// elsewhere. Network calls are made without holding the lock.
type Reconciler struct {
	store    FeedStore
	author   Author
	pageSize int
	now      func() time.Time

	mu           sync.Mutex
	messages     []Message
	hasMoreOlder bool
	oldestLoaded *time.Time
	loading      bool
	// echoes confirmed by a live insert, temp id -> server id
	consumed map[string]string
	// recently deleted ids, oldest first
	deleted []string
}

// deletedMemory bounds how many deleted ids are remembered
const deletedMemory = 256

// NewReconciler creates an empty view over store
func NewReconciler(store FeedStore, author Author, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		author:   author,
		pageSize: DefaultPageSize,
		now:      time.Now,
		consumed: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) beginLoad() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		return false
	}
	r.loading = true
	return true
}

func (r *Reconciler) endLoad() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

// InitialLoad replaces the view with the newest page. Pending echoes and live
// messages newer than the page survive, so it is safe to call again after a
// reconnect. On error the view is unchanged.
func (r *Reconciler) InitialLoad(ctx context.Context) error {
	if !r.beginLoad() {
		return ErrLoadInFlight
	}
	defer r.endLoad()

	page, err := r.store.ListMessages(ctx, nil, r.pageSize)
	if err != nil {
		return err
	}
	fetched := ascending(page.Messages)

	r.mu.Lock()
	defer r.mu.Unlock()

	var newest time.Time
	if n := len(fetched); n > 0 {
		newest = fetched[n-1].CreatedAt
	}
	seen := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		seen[m.ID] = true
	}

	next := fetched
	var pending []Message
	for _, m := range r.messages {
		switch {
		case seen[m.ID]:
		case m.Pending():
			pending = append(pending, m)
		case m.CreatedAt.After(newest):
			next = insertSorted(next, m)
			seen[m.ID] = true
		}
	}
	r.messages = append(next, pending...)
	r.hasMoreOlder = len(page.Messages) == r.pageSize
	r.oldestLoaded = nil
	if len(fetched) > 0 {
		oldest := fetched[0].CreatedAt
		r.oldestLoaded = &oldest
	}
	return nil
}

// LoadOlder prepends the page before the oldest loaded message. It is a no-op
// when there is nothing more or a load is already running.
func (r *Reconciler) LoadOlder(ctx context.Context) (LoadResult, error) {
	r.mu.Lock()
	if !r.hasMoreOlder || r.loading || r.oldestLoaded == nil {
		r.mu.Unlock()
		return LoadResult{}, nil
	}
	r.loading = true
	before := *r.oldestLoaded
	r.mu.Unlock()
	defer r.endLoad()

	page, err := r.store.ListMessages(ctx, &before, r.pageSize)
	if err != nil {
		return LoadResult{}, err
	}
	older := ascending(page.Messages)

	r.mu.Lock()
	defer r.mu.Unlock()

	res := LoadResult{BeforeCount: len(r.messages)}
	fresh := make([]Message, 0, len(older)+len(r.messages))
	for _, m := range older {
		if r.indexOf(m.ID) < 0 {
			fresh = append(fresh, m)
		}
	}
	res.Prepended = len(fresh)
	r.messages = append(fresh, r.messages...)
	res.AfterCount = len(r.messages)

	r.hasMoreOlder = len(page.Messages) == r.pageSize
	if len(older) > 0 {
		oldest := older[0].CreatedAt
		r.oldestLoaded = &oldest
	}
	return res, nil
}

// OnRemoteInsert merges a message confirmed by the server. A pending echo
// from the same author with the same body is taken to be this message and
// replaced in place.
func (r *Reconciler) OnRemoteInsert(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(m.ID) >= 0 || r.wasDeleted(m.ID) {
		return
	}
	for i, existing := range r.messages {
		if existing.Pending() && existing.AuthorID == m.AuthorID && existing.Body == m.Body {
			r.consumed[existing.ID] = m.ID
			r.messages[i] = m
			return
		}
	}
	r.messages = insertSorted(r.messages, m)
}

// OnRemoteDelete removes a message if present. The id is remembered so a
// late confirmation cannot bring the message back.
func (r *Reconciler) OnRemoteDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(id)
	if r.wasDeleted(id) {
		return
	}
	r.deleted = append(r.deleted, id)
	if len(r.deleted) > deletedMemory {
		r.deleted = r.deleted[len(r.deleted)-deletedMemory:]
	}
}

func (r *Reconciler) wasDeleted(id string) bool {
	for _, d := range r.deleted {
		if d == id {
			return true
		}
	}
	return false
}

// SendOptimistic appends a local echo of draft and returns its temporary id
func (r *Reconciler) SendOptimistic(draft Draft) string {
	echo := Message{
		ID:           TempIDPrefix + uuid.NewString(),
		AuthorID:     r.author.ID,
		AuthorName:   r.author.Name,
		AuthorAvatar: r.author.Avatar,
		Body:         draft.Body,
		MediaRefs:    draft.MediaRefs,
		ReplyRef:     draft.ReplyRef,
		CreatedAt:    r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, echo)
	return echo.ID
}

// ConfirmSend swaps the echo for the server's message without moving it
func (r *Reconciler) ConfirmSend(tempID string, confirmed Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if took, ok := r.consumed[tempID]; ok {
		// A live insert already took the echo's place. If it was a look-alike
		// the real message still has to go in.
		delete(r.consumed, tempID)
		if took != confirmed.ID && r.indexOf(confirmed.ID) < 0 && !r.wasDeleted(confirmed.ID) {
			r.messages = insertSorted(r.messages, confirmed)
		}
		return
	}

	i := r.indexOf(tempID)
	switch {
	case r.wasDeleted(confirmed.ID):
		if i >= 0 {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
		}
	case r.indexOf(confirmed.ID) >= 0:
		// A live insert got here first
		if i >= 0 {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
		}
	case i >= 0:
		r.messages[i] = confirmed
	default:
		// The echo was dropped, e.g. by a reload that raced the send
		r.messages = insertSorted(r.messages, confirmed)
	}
}

// FailSend rolls the echo back and returns the error to show the user
func (r *Reconciler) FailSend(tempID string, cause error) error {
	r.mu.Lock()
	r.remove(tempID)
	delete(r.consumed, tempID)
	r.mu.Unlock()
	return &SendError{TempID: tempID, Err: cause}
}

// AdminDelete deletes a message on the server and then locally
func (r *Reconciler) AdminDelete(ctx context.Context, id string) error {
	if err := r.store.DeleteMessage(ctx, id); err != nil {
		return err
	}
	r.OnRemoteDelete(id)
	return nil
}

// Send posts the composer's draft optimistically. The composer text is cleared
// at once and stays cleared if the send fails; attachments and the reply quote
// are only cleared on success.
func (r *Reconciler) Send(ctx context.Context, c *Composer) (Message, error) {
	draft, err := c.begin()
	if err != nil {
		return Message{}, err
	}

	tempID := r.SendOptimistic(draft)
	confirmed, err := r.store.SendMessage(ctx, draft)
	if err != nil {
		c.fail()
		return Message{}, r.FailSend(tempID, err)
	}

	r.ConfirmSend(tempID, confirmed)
	c.succeed()
	return confirmed, nil
}

// Apply routes a live event
func (r *Reconciler) Apply(ev Event) {
	switch ev.Type {
	case EventInsert:
		if ev.Message != nil {
			r.OnRemoteInsert(*ev.Message)
		}
	case EventDelete:
		r.OnRemoteDelete(ev.ID)
	}
}

// Attach feeds live events from sub into the view. After the returned release
// func is called no further events are applied.
func (r *Reconciler) Attach(ctx context.Context, sub FeedSubscription) (func(), error) {
	var active atomic.Bool
	active.Store(true)

	unsubscribe, err := sub.Subscribe(ctx, func(ev Event) {
		if active.Load() {
			r.Apply(ev)
		}
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			active.Store(false)
			unsubscribe()
		})
	}, nil
}

// Messages returns a copy of the view
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// HasMoreOlder reports whether LoadOlder may return more history
func (r *Reconciler) HasMoreOlder() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMoreOlder
}

// Loading reports whether a history load is running
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

func (r *Reconciler) indexOf(id string) int {
	for i := range r.messages {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) remove(id string) {
	if i := r.indexOf(id); i >= 0 {
		r.messages = append(r.messages[:i], r.messages[i+1:]...)
	}
}

// ascending reverses a newest-first page into a new slice
func ascending(page []Message) []Message {
	out := make([]Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = m
	}
	return out
}

// insertSorted places m after every message with CreatedAt <= m.CreatedAt
func insertSorted(list []Message, m Message) []Message {
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(m.CreatedAt)
	})
	list = append(list, Message{})
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}
