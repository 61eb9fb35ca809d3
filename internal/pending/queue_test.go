package pending

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/wire"
)

func TestQueue_FlushOldestFirst(t *testing.T) {
	q := New()
	q.Enqueue(wire.Document{"n": "1"})
	q.Enqueue(wire.Document{"n": "2"})
	q.Enqueue(wire.Document{"n": "3"})
	require.Equal(t, 3, q.Len())

	var got []string
	n := q.Flush(func(doc wire.Document) {
		got = append(got, doc["n"])
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_NoDeduplication(t *testing.T) {
	q := New()
	doc := wire.Document{"1.1.1": "Mature"}
	q.Enqueue(doc)
	q.Enqueue(doc)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_EnqueueCopies(t *testing.T) {
	q := New()
	doc := wire.Document{"k": "before"}
	q.Enqueue(doc)
	doc["k"] = "after"

	q.Flush(func(d wire.Document) {
		assert.Equal(t, "before", d["k"])
	})
}

// A snapshot enqueued by the sink during a flush must survive for the next
// flush and must not be delivered by the current one.
func TestQueue_EnqueueDuringFlush(t *testing.T) {
	q := New()
	q.Enqueue(wire.Document{"n": "1"})
	q.Enqueue(wire.Document{"n": "2"})

	var first []string
	q.Flush(func(doc wire.Document) {
		first = append(first, doc["n"])
		q.Enqueue(wire.Document{"n": "re-" + doc["n"]})
	})
	assert.Equal(t, []string{"1", "2"}, first)
	require.Equal(t, 2, q.Len())

	var second []string
	q.Flush(func(doc wire.Document) {
		second = append(second, doc["n"])
	})
	assert.Equal(t, []string{"re-1", "re-2"}, second)
}

func TestQueue_Coalesce(t *testing.T) {
	q := New(WithCoalesce(true))
	q.Enqueue(wire.Document{"n": "1"})
	q.Enqueue(wire.Document{"n": "2"})
	q.Enqueue(wire.Document{"n": "3"})
	require.Equal(t, 1, q.Len())

	var got []string
	q.Flush(func(doc wire.Document) { got = append(got, doc["n"]) })
	assert.Equal(t, []string{"3"}, got)
}

func TestQueue_Discard(t *testing.T) {
	q := New()
	q.Enqueue(wire.Document{"n": "1"})
	q.Enqueue(wire.Document{"n": "2"})
	assert.Equal(t, 2, q.Discard())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Flush(func(wire.Document) { t.Fatal("sink called on empty queue") }))
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(wire.Document{"k": "v"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
