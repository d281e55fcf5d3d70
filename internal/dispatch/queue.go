package dispatch

import "sync"

// fifo is an unbounded blocking queue. Enqueue never blocks; Pop blocks
// until an item arrives or the queue is closed and drained.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Job
	closed bool
}

func newFIFO() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item and returns the queue length after the append.
// Pushing to a closed queue drops the item.
func (q *fifo) Push(j Job) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return len(q.items)
	}
	q.items = append(q.items, j)
	q.cond.Signal()
	return len(q.items)
}

// Pop removes the oldest item. The second return is false once the queue is
// closed and empty.
func (q *fifo) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Job{}, false
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j, true
}

// Len returns the current depth.
func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked consumers; queued items are still drained.
func (q *fifo) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
