// Package pending buffers locally originated document snapshots while no
// link to the session is open.
package pending

import (
	"sync"

	"github.com/roach88/peersync/internal/wire"
)

// Queue is a FIFO of full local-document snapshots.
//
// The queue is unbounded and keeps every snapshot by default. With
// coalescing enabled it keeps only the newest one, since each entry is a full
// snapshot rather than a diff.
//
// Thread-safety: all methods are safe for concurrent use. In practice the
// session coordinator is the only caller.
type Queue struct {
	mu       sync.Mutex
	docs     []wire.Document
	coalesce bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithCoalesce keeps only the latest snapshot instead of the full FIFO.
func WithCoalesce(enabled bool) Option {
	return func(q *Queue) {
		q.coalesce = enabled
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a copy of doc.
func (q *Queue) Enqueue(doc wire.Document) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.coalesce {
		q.docs = append(q.docs[:0], doc.Clone())
		return
	}
	q.docs = append(q.docs, doc.Clone())
}

// Flush drains the queue oldest to newest, calling sink for each snapshot,
// and returns how many were drained.
//
// The contents are detached before the first sink call, so anything the sink
// enqueues lands in a fresh queue: it is neither lost nor sent twice by this
// flush.
func (q *Queue) Flush(sink func(wire.Document)) int {
	q.mu.Lock()
	docs := q.docs
	q.docs = nil
	q.mu.Unlock()

	for i, doc := range docs {
		sink(doc)
		docs[i] = nil
	}
	return len(docs)
}

// Discard drops every buffered snapshot.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.docs)
	q.docs = nil
	return n
}

// Len returns the number of buffered snapshots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.docs)
}
