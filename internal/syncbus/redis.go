package syncbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

// Redis is a Channel over Redis pub/sub, shared by windows in different processes.
type Redis struct {
	client  *redis.Client
	channel string
	log     pslog.Logger
	owned   bool

	mu   sync.Mutex
	subs map[*redis.PubSub]struct{}
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL, channel string, logger pslog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	r := NewRedisWithClient(client, channel, logger)
	r.owned = true
	return r, nil
}

// NewRedisWithClient builds a channel on an existing client. The client is not closed by Close.
func NewRedisWithClient(client *redis.Client, channel string, logger pslog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Redis{
		client:  client,
		channel: channel,
		log:     logger.With("channel", channel),
		subs:    make(map[*redis.PubSub]struct{}),
	}
}

// Publish sends msg to every subscriber of the channel.
func (r *Redis) Publish(ctx context.Context, msg schema.AuthMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal auth message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish auth message: %w", err)
	}
	return nil
}

// Subscribe confirms a subscription and relays foreign messages until cancel is called.
func (r *Redis) Subscribe(ctx context.Context, self schema.WindowID) (<-chan schema.AuthMessage, func(), error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.mu.Lock()
	r.subs[ps] = struct{}{}
	r.mu.Unlock()

	out := make(chan schema.AuthMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for m := range ps.Channel() {
			var msg schema.AuthMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn("syncbus redis message discarded", "err", err)
				continue
			}
			if msg.Sender == self {
				continue
			}
			select {
			case out <- msg:
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			r.mu.Lock()
			delete(r.subs, ps)
			r.mu.Unlock()
			if err := ps.Close(); err != nil {
				r.log.Debug("syncbus redis unsubscribe failed", "err", err)
			}
		})
	}, nil
}

// Close closes open subscriptions and, when owned, the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[*redis.PubSub]struct{})
	r.mu.Unlock()
	for ps := range subs {
		_ = ps.Close()
	}
	if r.owned {
		return r.client.Close()
	}
	return nil
}
