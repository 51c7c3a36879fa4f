package engine

import "sync"

// WorkQueue is a thread-safe FIFO of jobs with a terminal "done" signal
// (§4.C). Any number of producers and consumers may use it concurrently;
// waiters are woken on every push and on SetDone.
type WorkQueue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    []T
	done bool
}

// NewWorkQueue creates an empty, not-done queue.
func NewWorkQueue[T any]() *WorkQueue[T] {
	wq := &WorkQueue[T]{}
	wq.cond = sync.NewCond(&wq.mu)
	return wq
}

// Push enqueues a single item and wakes one waiter.
func (wq *WorkQueue[T]) Push(item T) {
	wq.mu.Lock()
	wq.q = append(wq.q, item)
	wq.mu.Unlock()
	wq.cond.Signal()
}

// PushBulk enqueues items as a batch and wakes all waiters, since more than
// one item became available at once.
func (wq *WorkQueue[T]) PushBulk(items []T) {
	if len(items) == 0 {
		return
	}
	wq.mu.Lock()
	wq.q = append(wq.q, items...)
	wq.mu.Unlock()
	wq.cond.Broadcast()
}

// TryPop returns the head item without blocking; ok is false if the queue is
// currently empty.
func (wq *WorkQueue[T]) TryPop() (item T, ok bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	if len(wq.q) == 0 {
		return item, false
	}
	item, wq.q = wq.q[0], wq.q[1:]
	return item, true
}

// WaitPop blocks until an item is available or the queue is done and empty,
// in which case ok is false.
func (wq *WorkQueue[T]) WaitPop() (item T, ok bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	for len(wq.q) == 0 && !wq.done {
		wq.cond.Wait()
	}
	if len(wq.q) == 0 {
		return item, false
	}
	item, wq.q = wq.q[0], wq.q[1:]
	return item, true
}

// SetDone marks the queue permanently done and wakes every waiter; items
// already enqueued remain poppable.
func (wq *WorkQueue[T]) SetDone() {
	wq.mu.Lock()
	wq.done = true
	wq.mu.Unlock()
	wq.cond.Broadcast()
}

// IsDone reports whether the queue is done and empty — the only state from
// which no further item will ever be observably produced.
func (wq *WorkQueue[T]) IsDone() bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.done && len(wq.q) == 0
}

// Size returns the current queue length.
func (wq *WorkQueue[T]) Size() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.q)
}
