package storageops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/bytestream"
	"parafs/pkg/collection"
	"parafs/pkg/dataspace"
	"parafs/pkg/keyval"
	"parafs/pkg/op"
	"parafs/pkg/opmgr"
	"parafs/pkg/worker"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	reg := collection.NewRegistry(t.TempDir(), collection.Config{
		HandleSpaceStart: 1,
		HandleSpaceEnd:   1000,
		PurgatoryBucket:  time.Second,
		AsyncBackend:     bytestream.NewThreadBackend(4),
	})
	col, err := reg.Open("default")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Release("default") })

	mgr := opmgr.New()
	mgr.Bind(func(o *op.Op) bool { return true }, worker.NewThreadedQueues(2))
	mgr.StartAll(context.Background())
	t.Cleanup(mgr.StopAll)

	return New(mgr, col)
}

func TestCreateObjectRoutesThroughManager(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := c.CreateObject(ctx, dataspace.Attributes{Type: dataspace.TypeDatafile, Mode: 0o644})
	require.NoError(t, err)
	require.NotZero(t, h)

	attrs, err := c.GetAttr(ctx, h)
	require.NoError(t, err)
	require.Equal(t, dataspace.TypeDatafile, attrs.Type)
}

func TestWriteBytesThenReadBytesRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := c.CreateObject(ctx, dataspace.Attributes{Type: dataspace.TypeDatafile})
	require.NoError(t, err)

	payload := []byte("storage engine exercised end-to-end through the op manager")
	n, err := c.WriteBytes(ctx, h, 0, payload)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)

	got := make([]byte, len(payload))
	n, err = c.ReadBytes(ctx, h, 0, got)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)
	require.Equal(t, payload, got)
}

func TestSetAttrMutatesUnderManager(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := c.CreateObject(ctx, dataspace.Attributes{Type: dataspace.TypeDatafile, Size: 0})
	require.NoError(t, err)

	require.NoError(t, c.SetAttr(ctx, h, func(a dataspace.Attributes) dataspace.Attributes {
		a.Size = 4096
		return a
	}))

	attrs, err := c.GetAttr(ctx, h)
	require.NoError(t, err)
	require.EqualValues(t, 4096, attrs.Size)
}

func TestRemoveObjectReturnsHandleToLedger(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := c.CreateObject(ctx, dataspace.Attributes{Type: dataspace.TypeDatafile})
	require.NoError(t, err)

	require.NoError(t, c.RemoveObject(ctx, h))

	_, err = c.GetAttr(ctx, h)
	require.Error(t, err)
	require.Equal(t, 1, c.Col.Ledger.PurgatoryCount())
}

func TestPutKeyvalThenGetKeyvalRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := c.CreateObject(ctx, dataspace.Attributes{Type: dataspace.TypeDirectory})
	require.NoError(t, err)

	require.NoError(t, c.PutKeyval(ctx, keyval.Handle(h), 'd', []byte("child-name"), []byte("child-value"), 0))

	v, err := c.GetKeyval(ctx, keyval.Handle(h), 'd', []byte("child-name"))
	require.NoError(t, err)
	require.Equal(t, []byte("child-value"), v)
}
