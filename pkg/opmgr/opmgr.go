// Package opmgr implements the Manager component: it binds worker
// variants to ops via first-match routing callouts and exposes the
// post/ctx_post/cancel/test/wait/service_op/complete_op/add_event_handler
// surface described in the original source's pint-mgmt.h. The manager
// itself holds no storage-engine knowledge; op.Service callouts are
// supplied by the caller (dataspace/bytestream/keyval/flow packages).
package opmgr

import (
	"context"
	"sync"

	"parafs/pkg/idreg"
	"parafs/pkg/op"
	"parafs/pkg/opctx"
	"parafs/pkg/perr"
	"parafs/pkg/worker"
)

// Route decides which registered worker should service o. The first
// route that returns true wins; routes are tried in registration order.
type Route func(o *op.Op) bool

// EventKind distinguishes the two lifecycle events a handler can observe.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
)

// EventHandler observes op lifecycle events, used internally by
// pkg/telemetry to emit spans without the manager depending on it.
type EventHandler func(kind EventKind, o *op.Op)

type binding struct {
	route Route
	w     worker.Worker
}

// Manager routes posted ops to workers and tracks them in the ID
// registry until completion.
type Manager struct {
	mu       sync.RWMutex
	bindings []binding
	ops      *idreg.Registry
	workers  map[int64]worker.Worker
	handlers []EventHandler
}

// New constructs an empty Manager. Bind at least one worker before
// calling Post.
func New() *Manager {
	return &Manager{ops: idreg.New(), workers: make(map[int64]worker.Worker)}
}

// Bind registers a worker for ops matching route. Bindings are
// first-match: register more specific routes before general fallbacks.
func (m *Manager) Bind(route Route, w worker.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, binding{route: route, w: w})
}

// StartAll starts every bound worker's background goroutines.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		b.w.Start(ctx)
	}
}

// StopAll stops every bound worker, draining in-flight ops.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		b.w.Stop()
	}
}

// AddEventHandler registers fn to observe START/END events: START fires
// when an op is posted to its worker and END when it completes, so the
// interval includes any time the op spends queued.
func (m *Manager) AddEventHandler(fn EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

func (m *Manager) fire(kind EventKind, o *op.Op) {
	m.mu.RLock()
	handlers := m.handlers
	m.mu.RUnlock()
	for _, h := range handlers {
		h(kind, o)
	}
}

func (m *Manager) route(o *op.Op) (worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		if b.route(o) {
			return b.w, nil
		}
	}
	return nil, perr.New("opmgr", perr.InvalidArg, "no worker route matched op")
}

// Post submits o for service with no completion context; useful for
// fire-and-forget ops whose result the caller does not need to observe.
func (m *Manager) Post(o *op.Op) error {
	return m.post(o, nil)
}

// CtxPost submits o for service, tracking its completion under ctx
// (either pull or callback mode, depending on how ctx was constructed).
func (m *Manager) CtxPost(ctx *opctx.Context, o *op.Op) error {
	return m.post(o, ctx)
}

func (m *Manager) post(o *op.Op, ctx *opctx.Context) error {
	w, err := m.route(o)
	if err != nil {
		return err
	}
	o.State = op.StateQueued
	o.ID = m.ops.Register(o)
	m.mu.Lock()
	m.workers[o.ID] = w
	m.mu.Unlock()
	if ctx != nil {
		ctx.Track(o)
	}
	m.fire(EventStart, o)
	return w.Post(o, func(finished *op.Op) {
		m.completeOp(finished, ctx)
	})
}

// completeOp is the manager's single completion funnel: every worker
// variant calls back here exactly once per op.
func (m *Manager) completeOp(o *op.Op, ctx *opctx.Context) {
	_ = m.ops.Remove(o.ID)
	m.mu.Lock()
	delete(m.workers, o.ID)
	m.mu.Unlock()
	m.fire(EventEnd, o)
	if ctx != nil {
		ctx.Complete(o)
	}
}

// Cancel requests early termination of an in-flight op by ID. It first
// asks the owning worker to rewrite the op out of whatever queue it is
// sitting in, per §4.D's "cancel rewrites a specific op out of its
// queue"; the worker's own completion funnel (completeOp, above) handles
// bookkeeping in that case. If the worker reports the op was not queued
// — already dispatched to Service, or the variant has no internal queue
// at all — Cancel falls back to the op's own CancelFunc as a cooperative
// signal. Returns perr.NotFound if the op is not currently tracked,
// perr.InvalidArg if neither path can cancel it.
func (m *Manager) Cancel(id int64) error {
	v, err := m.ops.Lookup(id)
	if err != nil {
		return err
	}
	o := v.(*op.Op)

	m.mu.RLock()
	w := m.workers[id]
	m.mu.RUnlock()

	if w != nil && w.Cancel(o) {
		return nil
	}

	if o.Cancel == nil {
		return perr.New("opmgr", perr.InvalidArg, "op does not support cancel")
	}
	if err := o.Cancel(o); err != nil {
		return perr.Wrap("opmgr", perr.Internal, "cancel callout failed", err)
	}
	o.State = op.StateCanceled
	return nil
}

// Test reports whether the op with the given ID has completed within
// ctx, delegating entirely to the context per §4.C/§4.E: querying the ID
// registry only tells you whether an op is tracked anywhere, not whether
// this particular context observed its completion, so two contexts
// sharing an op id would otherwise give incorrect results.
func (m *Manager) Test(ctx *opctx.Context, id int64) (*op.Op, bool) {
	return ctx.Test(id)
}

// TestSome is the batch form of Test: it reports every op among ids that
// ctx has observed complete.
func (m *Manager) TestSome(ctx *opctx.Context, ids []int64) []*op.Op {
	return ctx.TestSome(ids)
}

// Wait blocks on goCtx until at least one op tracked by ctx completes or
// goCtx's deadline/cancel fires, delegating to the context per §4.E.
func (m *Manager) Wait(goCtx context.Context, ctx *opctx.Context) ([]*op.Op, bool) {
	return ctx.Wait(goCtx)
}
