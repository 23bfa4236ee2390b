package epoch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPinUnpinDoesNotPanic(t *testing.T) {
	r := New()
	g := r.Pin()
	g.Unpin()
}

func TestDeferRunsEventually(t *testing.T) {
	r := New()
	var ran atomic.Bool

	g := r.Pin()
	g.Defer(func() { ran.Store(true) })
	g.Unpin()

	// A second pin/unpin cycle gives tryAdvance further chances to
	// observe that no guard is lagging and collect the bag.
	for i := 0; i < bags+1 && !ran.Load(); i++ {
		g2 := r.Pin()
		g2.Unpin()
	}

	assert.True(t, ran.Load())
}

func TestDrainAllRunsEverything(t *testing.T) {
	r := New()
	var count atomic.Int32

	for i := 0; i < 10; i++ {
		g := r.Pin()
		g.Defer(func() { count.Add(1) })
		g.Unpin()
	}

	r.DrainAll()
	assert.Equal(t, int32(10), count.Load())
}

func TestConcurrentPinUnpin(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	var executed atomic.Int64

	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				guard := r.Pin()
				guard.Defer(func() { executed.Add(1) })
				guard.Unpin()
			}
		}()
	}
	wg.Wait()
	r.DrainAll()

	assert.Equal(t, int64(32*1000), executed.Load())
}
