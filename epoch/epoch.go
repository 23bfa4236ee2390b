// Package epoch implements a small epoch-based deferred-reclamation
// service: the single concrete realization of the "opaque SMR scheme"
// that the containers in this module pin against. Choice of SMR
// strategy (epoch-based, hazard-pointer, reference-counted, or none)
// is an external-collaborator concern; this package supplies the
// default so the containers have something to call.
//
// The protocol is the classic three-epoch scheme: a global counter
// advances by one whenever every currently pinned guard has caught up
// to it, and garbage deferred two or more advances ago is guaranteed
// unreachable by any live guard and is freed eagerly on the advancing
// goroutine.
package epoch

import (
	"sync/atomic"

	"github.com/concurrentds/smrtest/mcs"
)

// bags is the number of trailing epochs for which garbage is kept
// live before being safe to collect.
const bags = 3

// record is one goroutine's registration with the global epoch.
// Pin sets active and copies the current global epoch into local;
// Unpin clears active. A record outlives any single pin/unpin cycle
// so it can be recycled across many calls, avoiding an allocation per
// Pin under steady-state contention.
type record struct {
	active atomic.Bool
	local  atomic.Uint64

	next     atomic.Pointer[record] // permanent link in the registry list
	idleNext atomic.Pointer[record] // transient link in the free stack
}

// Registry holds one container's epoch state: the global counter, the
// registry of live per-goroutine records, and one garbage bag per
// trailing epoch. Each container owns one Registry (created via New)
// and pins against it on every operation.
type Registry struct {
	global atomic.Uint64

	head    atomic.Pointer[record]
	regLock mcs.Lock

	idle atomic.Pointer[record]

	gLock   [bags]mcs.Lock
	garbage [bags][]func()
}

// New creates an empty Registry. Containers create one at
// construction time and keep it for their lifetime.
func New() *Registry { return &Registry{} }

// Guard is a scoped pin obtained from Pin. While a Guard is live, no
// obligation deferred by any goroutine at or after the pinning epoch
// is destroyed. Guard is not safe for concurrent use by more than one
// goroutine; acquire one per pinning goroutine and call Unpin exactly
// once when the traversal or mutation that needed it is done.
type Guard struct {
	reg *Registry
	rec *record
}

// Pin acquires a guard for the calling goroutine, recycling an idle
// record if one is available and allocating a fresh one otherwise.
func (r *Registry) Pin() *Guard {
	rec := r.acquireRecord()
	rec.local.Store(r.global.Load())
	rec.active.Store(true)
	return &Guard{reg: r, rec: rec}
}

// Unpin releases the guard, making its record available for reuse,
// and opportunistically tries to advance the epoch and collect
// garbage that has become unreachable.
func (g *Guard) Unpin() {
	g.rec.active.Store(false)
	g.reg.releaseRecord(g.rec)
	g.reg.tryAdvance()
	g.reg = nil
	g.rec = nil
}

// Defer records an obligation to run fn once no guard pinned at or
// before the current epoch remains live. Mutations that unlink a node
// must call Defer on the unlinked node's destructor after the
// CAS that physically removed it succeeds.
func (g *Guard) Defer(fn func()) {
	idx := g.reg.global.Load() % bags
	lock := &g.reg.gLock[idx]
	var node mcs.QNode
	lock.Lock(&node)
	g.reg.garbage[idx] = append(g.reg.garbage[idx], fn)
	lock.Unlock(&node)
}

// acquireRecord pops an idle record off the free stack, or allocates
// and registers a new one if the stack is empty.
func (r *Registry) acquireRecord() *record {
	for {
		top := r.idle.Load()
		if top == nil {
			break
		}
		next := top.idleNext.Load()
		if r.idle.CompareAndSwap(top, next) {
			return top
		}
	}

	rec := &record{}
	var node mcs.QNode
	r.regLock.Lock(&node)
	rec.next.Store(r.head.Load())
	r.head.Store(rec)
	r.regLock.Unlock(&node)
	return rec
}

// releaseRecord pushes rec back onto the free stack for reuse by a
// later Pin, from this or any other goroutine.
func (r *Registry) releaseRecord(rec *record) {
	for {
		top := r.idle.Load()
		rec.idleNext.Store(top)
		if r.idle.CompareAndSwap(top, rec) {
			return
		}
	}
}

// tryAdvance advances the global epoch by one if every active record
// has already observed it, then drains the garbage bag that is now
// two full advances behind and therefore unreachable by any guard.
func (r *Registry) tryAdvance() {
	cur := r.global.Load()

	for rec := r.head.Load(); rec != nil; rec = rec.next.Load() {
		if rec.active.Load() && rec.local.Load() != cur {
			return
		}
	}

	next := cur + 1
	if !r.global.CompareAndSwap(cur, next) {
		return
	}

	idx := (next + 1) % bags
	lock := &r.gLock[idx]
	var node mcs.QNode
	lock.Lock(&node)
	pending := r.garbage[idx]
	r.garbage[idx] = nil
	lock.Unlock(&node)

	for _, fn := range pending {
		fn()
	}
}

// DrainAll runs every still-pending deferred obligation across all
// bags, regardless of epoch. Containers call this from Close, once
// the caller has guaranteed no other goroutine holds a reference, to
// make sure no obligation is silently dropped.
func (r *Registry) DrainAll() {
	for idx := 0; idx < bags; idx++ {
		lock := &r.gLock[idx]
		var node mcs.QNode
		lock.Lock(&node)
		pending := r.garbage[idx]
		r.garbage[idx] = nil
		lock.Unlock(&node)

		for _, fn := range pending {
			fn()
		}
	}
}
