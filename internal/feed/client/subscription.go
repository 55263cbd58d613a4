package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ironflex/backend/internal/feed"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"
	wsproto "ironflex/backend/pkg/ws"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// SubscriptionOptions configures a Subscription
type SubscriptionOptions struct {
	Token  string
	Dialer *websocket.Dialer
	// ReconnectEvery bounds how often a dropped connection is redialled
	ReconnectEvery time.Duration
	// OnReconnect runs after every successful redial, typically to reload
	// the feed and close any gap
	OnReconnect func()
	Logger      *logger.Logger
}

// Subscription streams live feed events from the websocket endpoint
type Subscription struct {
	url         string
	header      http.Header
	dialer      *websocket.Dialer
	limiter     *rate.Limiter
	onReconnect func()
	log         *logger.Logger
}

// NewSubscription creates a subscription to wsURL
func NewSubscription(wsURL string, opts SubscriptionOptions) *Subscription {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.ReconnectEvery <= 0 {
		opts.ReconnectEvery = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	return &Subscription{
		url:         wsURL,
		header:      header,
		dialer:      opts.Dialer,
		limiter:     rate.NewLimiter(rate.Every(opts.ReconnectEvery), 1),
		onReconnect: opts.OnReconnect,
		log:         opts.Logger,
	}
}

// Subscribe dials and delivers events to handle until the returned func is
// called. A dropped connection is redialled in the background.
func (s *Subscription) Subscribe(ctx context.Context, handle func(feed.Event)) (func(), error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	// The first dial consumes the burst so reconnects are paced
	s.limiter.Allow()

	ctx, cancel := context.WithCancel(ctx)
	var (
		mu   sync.Mutex
		cur  = conn
		done = make(chan struct{})
	)

	go func() {
		defer close(done)
		for {
			s.read(cur, handle)
			if ctx.Err() != nil {
				return
			}

			next, err := s.redial(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			if ctx.Err() != nil {
				mu.Unlock()
				next.Close()
				return
			}
			cur = next
			mu.Unlock()
			if s.onReconnect != nil {
				s.onReconnect()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			cur.Close()
			mu.Unlock()
			<-done
		})
	}, nil
}

func (s *Subscription) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return nil, apperrors.NetworkFailure.WithCause(err)
	}
	return conn, nil
}

func (s *Subscription) redial(ctx context.Context) (*websocket.Conn, error) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		conn, err := s.dial(ctx)
		if err == nil {
			s.log.Info("feed subscription reconnected", "url", s.url)
			return conn, nil
		}
		s.log.Warn("feed subscription redial failed", "url", s.url, "error", err.Error())
	}
}

// read pumps frames until the connection fails
func (s *Subscription) read(conn *websocket.Conn, handle func(feed.Event)) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wsproto.Decode(data)
		if err != nil || msg.Type != wsproto.TypeFeed {
			continue
		}
		var ev feed.Event
		if err := json.Unmarshal(msg.Content, &ev); err != nil {
			s.log.Debug("malformed feed event", "error", err.Error())
			continue
		}
		handle(ev)
	}
}
