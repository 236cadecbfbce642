package persist

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of records waiting for an attempt.
//
// Push is safe from any goroutine. Records pushed with a Delay are held
// back until the delay elapses; ready records are handed out in push
// order. Several workers may Pop concurrently.
type Queue struct {
	name   string
	mu     sync.Mutex
	items  []queued
	closed bool
	signal chan struct{} // buffered(1), coalesces wake-ups
	now    func() time.Time
}

type queued struct {
	rec     *Record
	readyAt time.Time
}

// NewQueue creates an empty queue.
func NewQueue(name string) *Queue {
	return &Queue{
		name:   name,
		items:  make([]queued, 0, 64),
		signal: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Name returns the queue name used in logs and metrics.
func (q *Queue) Name() string {
	return q.name
}

// Push appends rec. It returns false if the queue is closed.
func (q *Queue) Push(rec *Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	ready := q.now()
	if rec.Delay > 0 {
		ready = ready.Add(rec.Delay)
	}
	q.items = append(q.items, queued{rec: rec, readyAt: ready})

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes the first ready record. When nothing is ready it returns
// the wait until the earliest held-back record, or zero if the queue is empty.
func (q *Queue) TryPop() (rec *Record, wait time.Duration, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	// Scan in push order; the first ready record wins, so a held-back
	// record never blocks the ones behind it.
	var earliest time.Time
	for i, it := range q.items {
		if !it.readyAt.After(now) {
			// Shift left and clear the vacated tail slot so the backing
			// array does not keep the popped record alive.
			last := len(q.items) - 1
			copy(q.items[i:], q.items[i+1:])
			q.items[last] = queued{}
			q.items = q.items[:last]
			if len(q.items) > 0 && !q.closed {
				// Wake another popper for the remaining records.
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return it.rec, 0, true
		}
		if earliest.IsZero() || it.readyAt.Before(earliest) {
			earliest = it.readyAt
		}
	}
	if earliest.IsZero() {
		return nil, 0, false
	}
	return nil, earliest.Sub(now), false
}

// Pop blocks until a record is ready, the queue is closed and empty,
// or ctx is done.
func (q *Queue) Pop(ctx context.Context) (*Record, bool) {
	for {
		rec, wait, ok := q.TryPop()
		if ok {
			return rec, true
		}

		// Only a closed queue with nothing left ends Pop; held-back records
		// are still delivered after Close.
		q.mu.Lock()
		closed := q.closed
		drained := closed && len(q.items) == 0
		q.mu.Unlock()
		if drained {
			return nil, false
		}

		var timer *time.Timer
		var fired <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			fired = timer.C
		}
		// A closed signal channel is always ready, so only the timer can
		// wake us for held-back records once the queue is closed.
		signal := q.signal
		if closed {
			signal = nil
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, false
		case <-signal:
		case <-fired:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Len returns the number of queued records, ready or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting records and wakes blocked poppers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
