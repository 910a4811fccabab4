package engine

import (
	"sync"

	"helios/internal/event"
)

// queue is a FIFO event buffer. It is safe for concurrent pushes, which lets
// external producers (the scheduler, the trade-update stream) enqueue events
// while the dispatch loop is draining.
type queue struct {
	mu     sync.Mutex
	events []event.Event
}

func newQueue() *queue {
	return &queue{}
}

// push appends an event to the back of the queue.
func (q *queue) push(e event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// pop removes and returns the front event. The second return value is false
// when the queue is empty.
func (q *queue) pop() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return event.Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// len returns the number of queued events.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
