// Package queue implements the bounded outbound queue: messages produced
// while the connection is down are held here and flushed in FIFO order on
// reconnect. When full, the oldest entry is evicted — newer state supersedes
// older for most tag types, so losing the oldest is preferred.
package queue

import (
	"sync"

	"github.com/artlane/realtime/internal/protocol"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 100

// Queue is a thread-safe bounded FIFO of outbound messages backed by a
// fixed-size ring buffer.
type Queue struct {
	mu       sync.Mutex
	buf      []protocol.Message
	head     int // read position
	tail     int // write position
	count    int
	capacity int

	// Stats
	totalEnqueued int64
	totalEvicted  int64
	totalFlushed  int64
}

// New creates a queue with the given capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{
		buf:      make([]protocol.Message, capacity),
		capacity: capacity,
	}
}

// Enqueue appends a message. If the queue is full the oldest entry is
// evicted first; the return value reports whether an eviction happened.
func (q *Queue) Enqueue(msg protocol.Message) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		q.buf[q.head] = protocol.Message{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.totalEvicted++
		evicted = true
	}

	q.buf[q.tail] = msg
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalEnqueued++
	return evicted
}

// Flush writes entries in FIFO order until the queue is empty or a write
// fails. On failure the failed message and everything behind it stay queued
// in original order; messages already written are never resent. Returns the
// number of messages written and the write error, if any.
func (q *Queue) Flush(write func(protocol.Message) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sent := 0
	for q.count > 0 {
		msg := q.buf[q.head]
		if err := write(msg); err != nil {
			return sent, err
		}
		q.buf[q.head] = protocol.Message{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.totalFlushed++
		sent++
	}
	return sent, nil
}

// Clear drops all queued messages.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count > 0 {
		q.buf[q.head] = protocol.Message{}
		q.head = (q.head + 1) % q.capacity
		q.count--
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalEnqueued: q.totalEnqueued,
		TotalEvicted:  q.totalEvicted,
		TotalFlushed:  q.totalFlushed,
	}
}

// Stats contains queue counters.
type Stats struct {
	Count         int
	Capacity      int
	TotalEnqueued int64
	TotalEvicted  int64
	TotalFlushed  int64
}
