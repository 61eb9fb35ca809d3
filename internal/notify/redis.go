package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the part of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// publishBuffer bounds the notifications waiting for Redis. Further
// notifications are dropped until the publisher catches up.
const publishBuffer = 64

// RedisSink publishes notifications as JSON to a Redis channel so a
// dashboard can follow several nodes at once.
//
// Notify never waits on Redis: notifications are queued and published by a
// background goroutine. Close drains the queue and stops it.
type RedisSink struct {
	pub     Publisher
	channel string
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}
}

// Notification is the JSON shape published by RedisSink.
type Notification struct {
	Message string    `json:"message"`
	Level   Level     `json:"level"`
	At      time.Time `json:"at"`
}

// NewRedisSink creates a sink that publishes on channel and starts its
// publishing goroutine.
func NewRedisSink(pub Publisher, channel string) *RedisSink {
	s := &RedisSink{
		pub:     pub,
		channel: channel,
		timeout: 2 * time.Second,
		now:     time.Now,
		queue:   make(chan Notification, publishBuffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// DialRedis connects to addr and returns the client for use with NewRedisSink.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Notify queues the message for publishing. It is dropped when the sink is
// closed or the queue is full.
func (s *RedisSink) Notify(message string, level Level) {
	n := Notification{Message: message, Level: level, At: s.now().UTC()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- n:
	default:
		slog.Warn("notification dropped: publish queue full", "channel", s.channel)
	}
}

// Close publishes what is queued and stops the sink. Safe to call twice.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *RedisSink) run() {
	defer close(s.done)
	for n := range s.queue {
		s.publish(n)
	}
}

// publish sends one notification. Failures are logged and dropped.
func (s *RedisSink) publish(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		slog.Warn("encode notification", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.pub.Publish(ctx, s.channel, payload).Err(); err != nil {
		slog.Warn("publish notification", "channel", s.channel, "error", err)
	}
}
