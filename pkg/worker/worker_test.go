package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/op"
	"parafs/pkg/opqueue"
)

func waitForComplete(t *testing.T, ch chan *op.Op) *op.Op {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("op did not complete in time")
		return nil
	}
}

func TestBlockingCompletesInline(t *testing.T) {
	b := NewBlocking()
	ch := make(chan *op.Op, 1)
	o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	require.NoError(t, b.Post(o, func(o *op.Op) { ch <- o }))
	got := waitForComplete(t, ch)
	require.Equal(t, op.StateCompleted, got.State)
}

func TestPerOpRunsConcurrently(t *testing.T) {
	p := NewPerOp()
	var wg sync.WaitGroup
	n := 5
	wg.Add(n)
	for i := 0; i < n; i++ {
		o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
		require.NoError(t, p.Post(o, func(o *op.Op) { wg.Done() }))
	}
	wg.Wait()
	p.Stop()
}

func TestQueuesServicesPostedOps(t *testing.T) {
	q := NewQueues()
	q.Start(context.Background())
	defer q.Stop()

	ch := make(chan *op.Op, 1)
	o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	require.NoError(t, q.Post(o, func(o *op.Op) { ch <- o }))
	got := waitForComplete(t, ch)
	require.Equal(t, op.StateCompleted, got.State)
}

func TestQueuesDoWorkIsDrivenExternally(t *testing.T) {
	w := NewQueues()
	ch := make(chan *op.Op, 1)
	o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	require.NoError(t, w.Post(o, func(o *op.Op) { ch <- o }))

	driverCtx, cancel := context.WithCancel(context.Background())
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		for driverCtx.Err() == nil {
			w.DoWork(5 * time.Millisecond)
		}
	}()
	defer func() { cancel(); <-driverDone }()

	got := waitForComplete(t, ch)
	require.Equal(t, op.StateCompleted, got.State)
}

func TestQueuesRoundRobinsOwnedQueues(t *testing.T) {
	w := NewQueues()
	extra := opqueue.New(opqueue.Triggers{})
	w.QueueAdd(extra)

	ch := make(chan *op.Op, 2)
	o1 := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	require.NoError(t, w.Post(o1, func(o *op.Op) { ch <- o }))

	o2 := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	o2.Opaque = completionWrapper{complete: func(o *op.Op) { ch <- o }}
	require.NoError(t, extra.Post(o2))

	w.DoWork(50 * time.Millisecond)

	waitForComplete(t, ch)
	waitForComplete(t, ch)
}

func TestQueuesCancelRewritesQueuedOp(t *testing.T) {
	w := NewQueues()
	o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	ch := make(chan *op.Op, 1)
	require.NoError(t, w.Post(o, func(o *op.Op) { ch <- o }))

	// No DoWork driver is running, so o is still sitting in the queue.
	require.True(t, w.Cancel(o))
	got := waitForComplete(t, ch)
	require.Equal(t, op.StateCanceled, got.State)
}

func TestThreadedQueuesCancelRewritesQueuedOp(t *testing.T) {
	tq := NewThreadedQueues(1)
	tq.Start(context.Background())
	defer tq.Stop()

	block := make(chan struct{})
	first := op.New(func(o *op.Op) (bool, error) { <-block; return true, nil }, nil, nil)
	firstCh := make(chan *op.Op, 1)
	require.NoError(t, tq.Post(first, func(o *op.Op) { firstCh <- o }))

	second := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
	secondCh := make(chan *op.Op, 1)
	require.NoError(t, tq.Post(second, func(o *op.Op) { secondCh <- o }))

	require.True(t, tq.Cancel(second))
	got := waitForComplete(t, secondCh)
	require.Equal(t, op.StateCanceled, got.State)

	close(block)
	waitForComplete(t, firstCh)
}

func TestThreadedQueuesServicesManyOps(t *testing.T) {
	tq := NewThreadedQueues(3)
	tq.Start(context.Background())
	defer tq.Stop()

	n := 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
		require.NoError(t, tq.Post(o, func(o *op.Op) { wg.Done() }))
	}
	wg.Wait()
}

func TestPoolBalancesAcrossThreads(t *testing.T) {
	p := NewPool(4)
	p.Start(context.Background())
	defer p.Stop()

	n := 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		o := op.New(func(o *op.Op) (bool, error) { return true, nil }, nil, nil)
		require.NoError(t, p.Post(o, func(o *op.Op) { wg.Done() }))
	}
	wg.Wait()
}

func TestExternalRespectsMaxPosts(t *testing.T) {
	block := make(chan struct{})
	e := NewExternal(func(ctx context.Context, o *op.Op) error {
		<-block
		return nil
	}, 1000, 1000, 1)
	e.Start(context.Background())
	defer func() {
		close(block)
		e.Stop()
	}()

	ch := make(chan *op.Op, 1)
	o1 := op.New(nil, nil, nil)
	require.NoError(t, e.Post(o1, func(o *op.Op) { ch <- o }))

	o2 := op.New(nil, nil, nil)
	err := e.Post(o2, func(o *op.Op) { ch <- o })
	require.Error(t, err)
}
