// Package orderedset implements a lock-free sorted singly-linked set
// (the Harris–Michael variant): traversal skips logically-deleted
// ("marked") nodes, and physical unlink happens only inside Remove,
// keeping find read-only. That split is the canonical choice spec.md
// calls out in its "Physical-unlink locus" design note, chosen over
// the source's alternative of unlinking marked nodes while finding.
//
// Grounded on original_source/src/structures/lock_free_link_list.rs,
// translated from crossbeam_epoch's Atomic<Node<T>>/Shared<'g, T> to
// atomic.Pointer[node[T]] and this module's epoch.Guard.
package orderedset

import (
	"sync/atomic"

	"github.com/concurrentds/smrtest/epoch"
)

// node is one set element. marked is set exactly once, seq-cst, to
// establish a single total order between concurrent markers and
// whichever goroutine's traversal notices the mark. version exists to
// deter ABA on (node, next) pairs once a node has been retired and,
// in principle, reused by an allocator that does not zero memory;
// Go's garbage collector never reuses a live node's address for an
// unrelated object, but version is kept to document the discipline
// the algorithm relies on and to make a future non-GC port trivial.
type node[T any] struct {
	value   T
	next    atomic.Pointer[node[T]]
	marked  atomic.Bool
	version atomic.Uint64
}

// OrderedSet is a lock-free sorted set over a totally ordered T. The
// zero value is not usable; construct with New.
type OrderedSet[T Ordered] struct {
	head atomic.Pointer[node[T]]
	reg  *epoch.Registry
}

// Ordered constrains T to values the set can compare with <, ==, >.
// cmp.Ordered is not used directly so this package has no additional
// standard-library surface dependency beyond what the teacher already
// carries; the constraint is identical in shape.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 | ~string
}

// New creates an empty ordered set.
func New[T Ordered]() *OrderedSet[T] {
	return &OrderedSet[T]{reg: epoch.New()}
}

// find walks from head, skipping marked nodes without unlinking them,
// and returns the predecessor/successor pair such that succ is the
// first node with value >= v, or nil if the list is exhausted. find
// never mutates the list; it must be called inside a live guard.
func (s *OrderedSet[T]) find(v T) (prev, curr *node[T]) {
	curr = s.head.Load()

	for curr != nil {
		if !curr.marked.Load() && curr.value >= v {
			return prev, curr
		}
		prev = curr
		curr = curr.next.Load()
	}

	return prev, nil
}

// Insert adds v to the set, returning false if an unmarked node with
// that value is already present. Lock-free; retries on CAS failure.
func (s *OrderedSet[T]) Insert(v T) bool {
	g := s.reg.Pin()
	defer g.Unpin()

	for {
		prev, curr := s.find(v)

		if curr != nil && !curr.marked.Load() && curr.value == v {
			return false
		}

		n := &node[T]{value: v}
		n.next.Store(curr)

		var ok bool
		if prev == nil {
			ok = s.head.CompareAndSwap(curr, n)
		} else {
			ok = prev.next.CompareAndSwap(curr, n)
		}
		if ok {
			return true
		}
		// n was never published; it is safe to let it be collected
		// without going through the reclamation service at all.
	}
}

// Remove marks the node holding v as logically deleted and attempts
// to physically unlink it. Returns false if no live node holds v.
// Lock-free; retries if a concurrent remove is racing on the same
// node's mark bit.
func (s *OrderedSet[T]) Remove(v T) bool {
	g := s.reg.Pin()
	defer g.Unpin()

	for {
		prev, curr := s.find(v)

		if curr == nil || curr.value != v || curr.marked.Load() {
			return false
		}

		next := curr.next.Load()

		if !curr.marked.CompareAndSwap(false, true) {
			// Someone else is marking the same node; re-read and let
			// the next loop iteration observe marked=true and report
			// false, per spec.md's remove() failure semantics.
			continue
		}
		curr.version.Add(1)

		var unlinked bool
		if prev == nil {
			unlinked = s.head.CompareAndSwap(curr, next)
		} else {
			unlinked = prev.next.CompareAndSwap(curr, next)
		}

		if unlinked {
			dead := curr
			g.Defer(func() { dead.next.Store(nil) })
		}
		// If the physical unlink CAS lost a race (prev moved under
		// us), the sticky mark still holds, so find skips curr from
		// then on. curr stays linked: find never unlinks, and no later
		// Remove retries the unlink of a node it did not mark itself.

		return true
	}
}

// Contains reports whether an unmarked node holding v is currently
// reachable from head. Never mutates the list.
func (s *OrderedSet[T]) Contains(v T) bool {
	g := s.reg.Pin()
	defer g.Unpin()

	_, curr := s.find(v)
	return curr != nil && !curr.marked.Load() && curr.value == v
}

// Close walks the remaining chain and releases every node. The
// caller must guarantee no other goroutine still holds a reference to
// the set.
func (s *OrderedSet[T]) Close() {
	curr := s.head.Swap(nil)
	for curr != nil {
		next := curr.next.Load()
		curr.next.Store(nil)
		curr = next
	}
	s.reg.DrainAll()
}
