package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	s.Notify("Host session started: AB12CD", Success)
	s.Notify("A peer disconnected.", Info)

	assert.Equal(t, "[success] Host session started: AB12CD\n[info] A peer disconnected.\n", buf.String())
}

func TestMulti(t *testing.T) {
	var got []string
	a := SinkFunc(func(m string, _ Level) { got = append(got, "a:"+m) })
	b := SinkFunc(func(m string, _ Level) { got = append(got, "b:"+m) })

	Multi{a, b}.Notify("hello", Info)
	assert.Equal(t, []string{"a:hello", "b:hello"}, got)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	LogSink{Logger: logger}.Notify("Connection timed out.", Error)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `message="Connection timed out."`)
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
	release  chan struct{} // when set, Publish blocks until it is closed
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	payload, _ := message.([]byte)
	f.payloads = append(f.payloads, payload)
	return redis.NewIntResult(1, f.err)
}

func (f *fakePublisher) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(pub, "peersync:notifications")
	s.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	s.Notify("A contributor joined your session.", Info)
	require.NoError(t, s.Close())

	payloads := pub.published()
	require.Len(t, payloads, 1)
	assert.Equal(t, []string{"peersync:notifications"}, pub.channels)
	var n Notification
	require.NoError(t, json.Unmarshal(payloads[0], &n))
	assert.Equal(t, "A contributor joined your session.", n.Message)
	assert.Equal(t, Info, n.Level)
	assert.True(t, n.At.Equal(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)))
}

func TestRedisSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	s := NewRedisSink(pub, "ch")
	assert.NotPanics(t, func() { s.Notify("x", Error) })
	require.NoError(t, s.Close())

	payloads := pub.published()
	require.Len(t, payloads, 1)
	assert.True(t, strings.HasPrefix(string(payloads[0]), "{"))
}

func TestRedisSink_NotifyDoesNotWaitForRedis(t *testing.T) {
	pub := &fakePublisher{release: make(chan struct{})}
	s := NewRedisSink(pub, "ch")

	returned := make(chan struct{})
	go func() {
		for i := 0; i < publishBuffer+10; i++ {
			s.Notify("A peer disconnected.", Info)
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled publisher")
	}

	close(pub.release)
	require.NoError(t, s.Close())
	got := len(pub.published())
	assert.GreaterOrEqual(t, got, publishBuffer, "queued notifications are published on close")
	assert.Less(t, got, publishBuffer+10, "overflow is dropped")
}

func TestRedisSink_Close(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(pub, "ch")
	s.Notify("first", Info)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Notify("after close", Info)

	assert.Len(t, pub.published(), 1)
}
