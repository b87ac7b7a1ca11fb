package result

import (
	"context"
	"sync"
	"time"
)

// LogQueue hands log entries from a running script to one consumer. Push
// never blocks and never drops; the consumer polls with Next.
type LogQueue struct {
	mu      sync.Mutex
	entries []string
	closed  bool
	notify  chan struct{}
}

// NewLogQueue creates an empty queue.
func NewLogQueue() *LogQueue {
	return &LogQueue{notify: make(chan struct{}, 1)}
}

// Push appends an entry. Pushing to a closed queue is a no-op.
func (q *LogQueue) Push(entry string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	q.signal()
}

// Close marks the end of the stream. Entries already queued stay readable.
func (q *LogQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *LogQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued entry, and reports whether the
// queue has been closed.
func (q *LogQueue) Drain() ([]string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out, q.closed
}

// Next waits until entries are available, the queue is closed, poll elapses
// or ctx ends, then drains. done is true once the queue is closed and empty.
func (q *LogQueue) Next(ctx context.Context, poll time.Duration) (entries []string, done bool, err error) {
	timer := time.NewTimer(poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-q.notify:
	case <-timer.C:
	}
	entries, done = q.Drain()
	return entries, done, nil
}
