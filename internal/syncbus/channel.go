// Package syncbus broadcasts auth transitions between window contexts and
// reconciles the local auth state with transitions made elsewhere.
package syncbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

// DefaultChannel is the broadcast channel name shared by all windows.
const DefaultChannel = "quilix:auth"

// Channel is an origin-wide broadcast channel. A subscriber never receives
// messages published under its own window id.
type Channel interface {
	Publish(ctx context.Context, msg schema.AuthMessage) error
	Subscribe(ctx context.Context, self schema.WindowID) (<-chan schema.AuthMessage, func(), error)
	Close() error
}

// Hub is an in-process Channel.
type Hub struct {
	mu     sync.Mutex
	subs   map[*hubSub]struct{}
	closed bool
	depth  int
	log    pslog.Logger
}

type hubSub struct {
	self schema.WindowID
	ch   chan schema.AuthMessage
}

// NewHub constructs an in-process channel.
func NewHub(logger pslog.Logger) *Hub {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{subs: make(map[*hubSub]struct{}), depth: 16, log: logger}
}

// Publish delivers msg to every other subscriber without blocking.
func (h *Hub) Publish(_ context.Context, msg schema.AuthMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return schema.ErrChannelClosed
	}
	for sub := range h.subs {
		if sub.self == msg.Sender {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.log.Warn("syncbus hub dropped message", "window", sub.self, "type", msg.Type)
		}
	}
	return nil
}

// Subscribe registers self and returns its message channel and a cancel func.
func (h *Hub) Subscribe(_ context.Context, self schema.WindowID) (<-chan schema.AuthMessage, func(), error) {
	sub := &hubSub{self: self, ch: make(chan schema.AuthMessage, h.depth)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, schema.ErrChannelClosed
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}, nil
}

// Close closes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
	return nil
}

var sharedHubs = struct {
	mu   sync.Mutex
	hubs map[string]*sharedHub
}{hubs: make(map[string]*sharedHub)}

type sharedHub struct {
	hub  *Hub
	refs int
}

// hubRef is one reference to a shared Hub. The hub closes with its last reference.
type hubRef struct {
	*Hub
	key  string
	once sync.Once
}

// AcquireHub returns a reference to the process-wide Hub named key, creating
// it on first use. Window contexts opened in one process with the same key
// see each other's messages.
func AcquireHub(key string, logger pslog.Logger) Channel {
	sharedHubs.mu.Lock()
	defer sharedHubs.mu.Unlock()
	sh := sharedHubs.hubs[key]
	if sh == nil {
		sh = &sharedHub{hub: NewHub(logger)}
		sharedHubs.hubs[key] = sh
	}
	sh.refs++
	return &hubRef{Hub: sh.hub, key: key}
}

// Close releases the reference.
func (r *hubRef) Close() error {
	var err error
	r.once.Do(func() {
		sharedHubs.mu.Lock()
		defer sharedHubs.mu.Unlock()
		sh := sharedHubs.hubs[r.key]
		if sh == nil || sh.hub != r.Hub {
			return
		}
		sh.refs--
		if sh.refs > 0 {
			return
		}
		delete(sharedHubs.hubs, r.key)
		err = sh.hub.Close()
	})
	return err
}
