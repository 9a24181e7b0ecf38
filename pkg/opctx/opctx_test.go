package opctx

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/op"
)

func TestPullModePollAndWait(t *testing.T) {
	c := New()
	o := op.New(nil, nil, nil)
	o.ID = 1
	c.Track(o)
	require.Equal(t, 1, c.PendingCount())

	require.Nil(t, c.Poll())

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Complete(o)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done, ok := c.Wait(ctx)
	require.True(t, ok)
	require.Len(t, done, 1)
	require.Equal(t, o, done[0])
	require.Equal(t, 0, c.PendingCount())
}

func TestCallbackModeInvokesInline(t *testing.T) {
	var called int32
	c := NewCallback(func(o *op.Op) { atomic.AddInt32(&called, 1) })
	require.True(t, c.IsCallbackMode())

	o := op.New(nil, nil, nil)
	o.ID = 7
	c.Track(o)
	c.Complete(o)

	require.EqualValues(t, 1, atomic.LoadInt32(&called))
	require.Nil(t, c.Poll())
}

func TestTestObservesOnlyItsOwnID(t *testing.T) {
	c := New()
	o1 := op.New(nil, nil, nil)
	o1.ID = 1
	o2 := op.New(nil, nil, nil)
	o2.ID = 2
	c.Track(o1)
	c.Track(o2)

	c.Complete(o1)

	_, ok := c.Test(2)
	require.False(t, ok)

	got, ok := c.Test(1)
	require.True(t, ok)
	require.Equal(t, o1, got)

	// Consumed: a second Test for the same ID reports nothing left.
	_, ok = c.Test(1)
	require.False(t, ok)
}

func TestTwoContextsSharingAnOpIDDoNotCrossObserve(t *testing.T) {
	a := New()
	b := New()
	o := op.New(nil, nil, nil)
	o.ID = 42
	a.Track(o)
	b.Track(o)

	a.Complete(o)

	_, ok := a.Test(42)
	require.True(t, ok)
	_, ok = b.Test(42)
	require.False(t, ok)
}

func TestTestSomeReturnsOnlyRequestedIDs(t *testing.T) {
	c := New()
	ops := make([]*op.Op, 3)
	for i := range ops {
		ops[i] = op.New(nil, nil, nil)
		ops[i].ID = int64(i + 1)
		c.Track(ops[i])
		c.Complete(ops[i])
	}

	got := c.TestSome([]int64{1, 3})
	require.Len(t, got, 2)

	// IDs consumed by TestSome no longer show up in Poll.
	rest := c.Poll()
	require.Len(t, rest, 1)
	require.Equal(t, int64(2), rest[0].ID)
}

func TestWaitTimesOut(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, ok := c.Wait(ctx)
	require.False(t, ok)
}
