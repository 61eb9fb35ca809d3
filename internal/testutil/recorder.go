package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/peersync/internal/notify"
	"github.com/roach88/peersync/internal/room"
)

// Notice is one recorded notification.
type Notice struct {
	Message string
	Level   notify.Level
}

// Recorder is a notify.Sink that keeps every notification for assertions.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records the notification.
func (r *Recorder) Notify(message string, level notify.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Message: message, Level: level})
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Count returns how many notifications contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, notice := range r.Notices() {
		if strings.Contains(notice.Message, substr) {
			n++
		}
	}
	return n
}

// Has reports whether any notification contains substr.
func (r *Recorder) Has(substr string) bool {
	return r.Count(substr) > 0
}

// RecordStore is an in-memory durable session record store.
type RecordStore struct {
	mu    sync.Mutex
	desc  room.Descriptor
	found bool
	saves int
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Save stores d.
func (s *RecordStore) Save(_ context.Context, d room.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desc = d
	s.found = true
	s.saves++
	return nil
}

// Load returns the stored descriptor, if any.
func (s *RecordStore) Load(_ context.Context) (room.Descriptor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.found, nil
}

// Clear removes the stored descriptor.
func (s *RecordStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desc = room.Descriptor{}
	s.found = false
	return nil
}

// Current returns the stored descriptor without a context.
func (s *RecordStore) Current() (room.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.found
}
