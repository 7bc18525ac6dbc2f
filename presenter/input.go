package presenter

import "sync"

// DefaultInputQueueSize bounds the events buffered between guest polls.
const DefaultInputQueueSize = 256

// InputQueue is a bounded FIFO of input events. When full, the oldest
// event is discarded so a guest that never polls cannot grow host memory.
type InputQueue struct {
	buf     []Event
	mu      sync.Mutex
	head    int
	size    int
	dropped uint64
}

// NewInputQueue creates a queue holding at most capacity events.
func NewInputQueue(capacity int) *InputQueue {
	if capacity <= 0 {
		capacity = DefaultInputQueueSize
	}
	return &InputQueue{buf: make([]Event, capacity)}
}

// Push appends ev, evicting the oldest event if the queue is full.
func (q *InputQueue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
	}
	q.buf[(q.head+q.size)%len(q.buf)] = ev
	q.size++
}

// Drain moves up to max events into dst and returns the extended slice.
func (q *InputQueue) Drain(dst []Event, max int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	for max > 0 && q.size > 0 {
		dst = append(dst, q.buf[q.head])
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		max--
	}
	return dst
}

// Len returns the number of queued events.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many events were evicted because the queue was full.
func (q *InputQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
