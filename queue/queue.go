// Package queue implements an unbounded, lock-free FIFO queue using
// the Michael–Scott two-CAS algorithm: a sentinel head, a tail that
// may lag by one node (the "swinging tail" invariant), and helper
// logic so a stalled enqueuer's tail CAS gets finished by whichever
// other goroutine next notices.
//
// Grounded on original_source/src/structures/atomic_queue.rs and
// lockfreequeue.rs, translated from AtomicPtr<Node<T>> to
// atomic.Pointer[node[T]] and from crossbeam_epoch's guard.defer_destroy
// to this module's epoch.Guard.Defer.
package queue

import (
	"sync/atomic"

	"github.com/concurrentds/smrtest/epoch"
)

// node is one queue slot. The sentinel node (the one head always
// points at) carries a nil value; every other live node was produced
// by a call to Enqueue and carries the value passed to it.
type node[T any] struct {
	value atomic.Pointer[T]
	next  atomic.Pointer[node[T]]
}

// FifoQueue is an unbounded, multi-producer multi-consumer FIFO
// queue. The zero value is not usable; construct with New.
type FifoQueue[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	reg  *epoch.Registry
}

// New creates an empty queue with a fresh sentinel node.
func New[T any]() *FifoQueue[T] {
	sentinel := &node[T]{}
	q := &FifoQueue[T]{reg: epoch.New()}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue appends v to the tail of the queue. Lock-free: at least one
// enqueuer makes progress in any finite contention window.
func (q *FifoQueue[T]) Enqueue(v T) {
	g := q.reg.Pin()
	defer g.Unpin()

	n := &node[T]{}
	n.value.Store(&v)

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// Best-effort: swing tail forward. A failure here just
				// means another goroutine already helped us advance it.
				q.tail.CompareAndSwap(tail, n)
				return
			}
		} else {
			// Tail lagged behind a node some other enqueuer already
			// linked; help advance it before retrying our own CAS.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// Dequeue removes and returns the value at the head of the queue, or
// (zero, false) if the queue was empty. Lock-free.
func (q *FifoQueue[T]) Dequeue() (T, bool) {
	g := q.reg.Pin()
	defer g.Unpin()

	for {
		head := q.head.Load()
		tail := q.tail.Load()
		headNext := head.next.Load()

		if head == tail {
			if headNext == nil {
				var zero T
				return zero, false
			}
			// Tail lagged behind the real last node; help it catch up
			// and retry from a consistent view.
			q.tail.CompareAndSwap(tail, headNext)
			continue
		}

		valPtr := headNext.value.Load()
		if q.head.CompareAndSwap(head, headNext) {
			// headNext becomes the new sentinel; the old sentinel head
			// is what gets retired once no guard can still see it.
			old := head
			g.Defer(func() { old.next.Store(nil) })
			return *valPtr, true
		}
	}
}

// Close drains every remaining node through Dequeue and then runs every
// still-pending deferred obligation; the final sentinel stays in place.
// The caller must guarantee no other goroutine still holds a reference
// to the queue.
func (q *FifoQueue[T]) Close() {
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
	}
	q.reg.DrainAll()
}
