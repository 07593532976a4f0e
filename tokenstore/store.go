// Package tokenstore holds the client's access and refresh tokens in durable
// storage and tells subscribers when the access token changes, both inside
// this process and, best effort, in other processes sharing the same origin.
package tokenstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Storage keys.
const (
	AccessTokenKey  = "auth_access_token"
	RefreshTokenKey = "auth_refresh_token"
)

// Subscriber receives the current access token, or "" once it is cleared.
// It may be called from several goroutines.
type Subscriber func(token string)

// Option configures a Store.
type Option func(*Store)

// WithChannel publishes changes on ch and listens to it for changes made by
// other stores.
func WithChannel(ch Channel) Option {
	return func(s *Store) {
		s.channel = ch
	}
}

// WithLogger sets the logger used for swallowed storage and channel failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the single holder of the access and refresh tokens for one origin.
//
// None of its methods fail: storage and channel errors are logged at debug
// level and the operation degrades to a no-op or an empty read. A Store with
// nil Storage behaves as if no durable storage exists at all.
type Store struct {
	storage Storage
	channel Channel
	logger  *slog.Logger
	id      string

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

type subscription struct {
	fn Subscriber

	mu     sync.Mutex
	closed bool
	last   string
}

// New creates a Store over storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		logger:  slog.Default(),
		id:      uuid.NewString(),
		subs:    make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies this store in broadcast messages.
func (s *Store) ID() string { return s.id }

// GetToken returns the access token, or "" if there is none or it cannot be read.
func (s *Store) GetToken(ctx context.Context) string {
	return s.read(ctx, AccessTokenKey)
}

// SetToken stores token, notifies in-process subscribers before returning,
// then broadcasts the change. An empty token clears it instead.
func (s *Store) SetToken(ctx context.Context, token string) {
	if token == "" {
		s.ClearToken(ctx)
		return
	}
	if s.storage == nil {
		return
	}
	if err := s.storage.Set(ctx, AccessTokenKey, token); err != nil {
		s.logger.Debug("store access token", "error", err)
		return
	}
	s.notify(token)
	s.publish(ctx, Message{Type: MessageToken, Token: token})
}

// ClearToken removes the access token, notifies subscribers with "" and
// broadcasts a token_cleared message.
func (s *Store) ClearToken(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, AccessTokenKey); err != nil {
		s.logger.Debug("clear access token", "error", err)
		return
	}
	s.notify("")
	s.publish(ctx, Message{Type: MessageTokenCleared})
}

// GetRefreshToken returns the refresh token or "".
func (s *Store) GetRefreshToken(ctx context.Context) string {
	return s.read(ctx, RefreshTokenKey)
}

// SetRefreshToken stores the refresh token. Refresh token changes are not
// broadcast. An empty token clears it.
func (s *Store) SetRefreshToken(ctx context.Context, token string) {
	if token == "" {
		s.ClearRefreshToken(ctx)
		return
	}
	if s.storage == nil {
		return
	}
	if err := s.storage.Set(ctx, RefreshTokenKey, token); err != nil {
		s.logger.Debug("store refresh token", "error", err)
	}
}

// ClearRefreshToken removes the refresh token.
func (s *Store) ClearRefreshToken(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, RefreshTokenKey); err != nil {
		s.logger.Debug("clear refresh token", "error", err)
	}
}

// Subscribe registers fn for access token changes and immediately calls it
// with the current value. Changes arrive from this store's writes, from the
// broadcast channel, and from the storage watcher when the storage has one.
// The returned function unsubscribes from all three; calling it again is a no-op.
func (s *Store) Subscribe(fn Subscriber) func() {
	if s.storage == nil || fn == nil {
		return func() {}
	}

	sub := &subscription{fn: fn}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.mu.Unlock()

	var stops []func()
	if s.channel != nil {
		unsub, err := s.channel.Subscribe(func(msg Message) {
			if msg.Source != "" && msg.Source == s.id {
				return
			}
			switch msg.Type {
			case MessageToken:
				s.deliver(sub, msg.Token, true)
			case MessageTokenCleared:
				s.deliver(sub, "", true)
			}
		})
		if err != nil {
			s.logger.Debug("subscribe to token channel", "error", err)
		} else {
			stops = append(stops, unsub)
		}
	}
	if w, ok := s.storage.(Watcher); ok {
		stops = append(stops, w.Watch(AccessTokenKey, func(v string) {
			s.deliver(sub, v, true)
		}))
	}

	s.deliver(sub, s.GetToken(context.Background()), false)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()

			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()

			for _, stop := range stops {
				stop()
			}
		})
	}
}

func (s *Store) read(ctx context.Context, key string) string {
	if s.storage == nil {
		return ""
	}
	v, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug("read token", "key", key, "error", err)
		}
		return ""
	}
	return v
}

func (s *Store) notify(token string) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(sub, token, false)
	}
}

// deliver calls the subscriber unless it is closed. External deliveries that
// repeat the value last seen by this subscription are dropped.
func (s *Store) deliver(sub *subscription, token string, external bool) {
	sub.mu.Lock()
	if sub.closed || (external && token == sub.last) {
		sub.mu.Unlock()
		return
	}
	sub.last = token
	sub.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("token subscriber panicked", "panic", r)
		}
	}()
	sub.fn(token)
}

func (s *Store) publish(ctx context.Context, msg Message) {
	if s.channel == nil {
		return
	}
	msg.Source = s.id
	if err := s.channel.Publish(ctx, msg); err != nil {
		s.logger.Debug("broadcast token change", "type", msg.Type, "error", err)
	}
}
