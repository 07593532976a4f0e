package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// DefaultChannelName is the broadcast channel token changes are published on.
const DefaultChannelName = "slowfall-auth"

// Message types carried on a Channel.
const (
	MessageToken        = "token"
	MessageTokenCleared = "token_cleared"
)

// ErrChannelClosed is returned when publishing on a closed LocalChannel.
var ErrChannelClosed = errors.New("tokenstore: channel closed")

// Message is the wire shape of a token change notification.
type Message struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	// Source identifies the publishing Store so it can skip its own echoes.
	Source string `json:"source,omitempty"`
}

// Channel is a best-effort broadcast between stores of the same origin that
// live in different processes or contexts.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(fn func(Message)) (unsubscribe func(), err error)
}

// Hub connects LocalChannels by name inside one process.
type Hub struct {
	mu    sync.Mutex
	chans map[string]map[*LocalChannel]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{chans: make(map[string]map[*LocalChannel]struct{})}
}

// Open returns a new channel instance joined to name.
func (h *Hub) Open(name string) *LocalChannel {
	c := &LocalChannel{hub: h, name: name, listeners: make(map[uint64]func(Message))}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chans[name] == nil {
		h.chans[name] = make(map[*LocalChannel]struct{})
	}
	h.chans[name][c] = struct{}{}
	return c
}

func (h *Hub) peers(c *LocalChannel) []*LocalChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*LocalChannel
	for p := range h.chans[c.name] {
		if p != c {
			out = append(out, p)
		}
	}
	return out
}

func (h *Hub) leave(c *LocalChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chans[c.name], c)
	if len(h.chans[c.name]) == 0 {
		delete(h.chans, c.name)
	}
}

// LocalChannel is one instance of a named in-process broadcast channel. Posts
// are delivered synchronously to every other open instance of the same name,
// never back to the poster.
type LocalChannel struct {
	hub  *Hub
	name string

	mu        sync.Mutex
	listeners map[uint64]func(Message)
	nextID    uint64
	closed    bool
}

func (c *LocalChannel) Publish(_ context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	for _, p := range c.hub.peers(c) {
		p.deliver(msg)
	}
	return nil
}

func (c *LocalChannel) Subscribe(fn func(Message)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}, nil
}

// Close detaches the instance from its hub.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listeners = nil
	c.mu.Unlock()

	c.hub.leave(c)
	return nil
}

func (c *LocalChannel) deliver(msg Message) {
	c.mu.Lock()
	fns := make([]func(Message), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}
