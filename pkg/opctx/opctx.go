// Package opctx implements the Context component: a completion
// aggregation set over *op.Op, supporting pull-mode (Poll/Wait) and
// callback-mode (a completion callback invoked synchronously from the
// worker goroutine that finished the op). Grounded on the original
// source's pint-context.h pull-vs-callback contract; the Go idiom for the
// timed wait (sync.Cond plus a context.AfterFunc wakeup) follows the
// teacher's pkg/ingest/queue/durable.go flushCond pattern.
package opctx

import (
	"context"
	"sync"

	"parafs/pkg/op"
)

// CompletionFunc is invoked once, synchronously, by whichever worker
// goroutine finishes o, when the Context was created in callback mode.
type CompletionFunc func(o *op.Op)

// Context aggregates completions for a set of in-flight ops.
type Context struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[int64]*op.Op
	done     []*op.Op
	callback CompletionFunc
}

// New creates a pull-mode Context: completions accumulate until drained
// via Poll or Wait.
func New() *Context {
	c := &Context{pending: make(map[int64]*op.Op)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// NewCallback creates a callback-mode Context: fn is invoked directly
// from Complete, on the finishing worker's goroutine, instead of queuing
// the op for Poll/Wait.
func NewCallback(fn CompletionFunc) *Context {
	c := &Context{pending: make(map[int64]*op.Op), callback: fn}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Track registers o as in flight under this context.
func (c *Context) Track(o *op.Op) {
	c.mu.Lock()
	c.pending[o.ID] = o
	c.mu.Unlock()
}

// Complete marks o as finished. In pull mode it is moved to the done set
// and Poll/Wait callers are woken; in callback mode the registered
// CompletionFunc is invoked inline, on the caller's goroutine.
func (c *Context) Complete(o *op.Op) {
	c.mu.Lock()
	delete(c.pending, o.ID)
	if c.callback == nil {
		c.done = append(c.done, o)
	}
	c.mu.Unlock()

	if c.callback != nil {
		c.callback(o)
		return
	}
	c.cond.Broadcast()
}

// Poll returns and clears any ops that have completed since the last
// Poll/Wait, without blocking — the test_all(timeout=0) case. Always
// empty in callback mode.
func (c *Context) Poll() []*op.Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.done) == 0 {
		return nil
	}
	out := c.done
	c.done = nil
	return out
}

// Wait blocks until at least one op has completed or ctx is done,
// re-checking the done set after each wakeup. Always returns immediately
// with (nil, false) in callback mode, since there is nothing to pull.
func (c *Context) Wait(ctx context.Context) ([]*op.Op, bool) {
	if c.callback != nil {
		return nil, false
	}
	waitDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(waitDone)
		c.cond.Broadcast()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.done) == 0 {
		select {
		case <-waitDone:
			return nil, false
		default:
		}
		c.cond.Wait()
	}
	out := c.done
	c.done = nil
	return out, true
}

// Test reports whether the op with the given ID has completed within
// this context, without blocking. A true result consumes the completion
// from the done set, the same way Poll does; a false result just means
// "not observed yet by this context" — it says nothing about whether the
// op is tracked by some other context or not tracked at all.
func (c *Context) Test(id int64) (*op.Op, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.done {
		if o.ID == id {
			c.done = append(c.done[:i:i], c.done[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

// TestSome is the batch form of Test: it returns every op among ids that
// has completed within this context, consuming each from the done set.
func (c *Context) TestSome(ids []int64) []*op.Op {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out, remaining []*op.Op
	for _, o := range c.done {
		if want[o.ID] {
			out = append(out, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	c.done = remaining
	return out
}

// PendingCount returns the number of ops still tracked as in flight.
func (c *Context) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsCallbackMode reports whether this Context delivers completions via
// callback rather than pull.
func (c *Context) IsCallbackMode() bool { return c.callback != nil }
