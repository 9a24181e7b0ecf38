package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/bytestream"
	"parafs/pkg/collection"
	"parafs/pkg/config"
)

func newTestRegistry(t *testing.T) (*collection.Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := collection.NewRegistry(root, collection.Config{
		HandleSpaceStart: 1,
		HandleSpaceEnd:   1000,
		PurgatoryBucket:  time.Millisecond,
		AsyncBackend:     bytestream.NewThreadBackend(4),
	})
	return reg, root
}

func TestRunOnceReleasesExpiredPurgatoryHandles(t *testing.T) {
	reg, root := newTestRegistry(t)
	c, err := reg.Open("default")
	require.NoError(t, err)

	h, ok := c.Ledger.Allocate()
	require.True(t, ok)
	c.Ledger.Free(h, time.Now().Add(-time.Hour))
	require.Equal(t, 1, c.Ledger.PurgatoryCount())

	lockDir := filepath.Join(root, "lock")
	cfg := config.RetentionConfig{Enabled: true, DryRun: false}
	err = runOnce(context.Background(), reg, cfg, time.Millisecond, time.Hour, lockDir)
	require.NoError(t, err)

	require.Equal(t, 0, c.Ledger.PurgatoryCount())
}

func TestRunOnceDryRunLeavesPurgatoryUntouched(t *testing.T) {
	reg, root := newTestRegistry(t)
	c, err := reg.Open("default")
	require.NoError(t, err)

	h, ok := c.Ledger.Allocate()
	require.True(t, ok)
	c.Ledger.Free(h, time.Now().Add(-time.Hour))

	lockDir := filepath.Join(root, "lock")
	cfg := config.RetentionConfig{Enabled: true, DryRun: true}
	err = runOnce(context.Background(), reg, cfg, time.Millisecond, time.Hour, lockDir)
	require.NoError(t, err)

	require.Equal(t, 1, c.Ledger.PurgatoryCount())
}

func TestRunOnceReapsStrandedFilesPastTTL(t *testing.T) {
	reg, root := newTestRegistry(t)
	c, err := reg.Open("default")
	require.NoError(t, err)

	strandedDir := c.Bytestream.StrandedDir()
	old := filepath.Join(strandedDir, "0000000000000001.bstream")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	oldTime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	lockDir := filepath.Join(root, "lock")
	cfg := config.RetentionConfig{Enabled: true}
	err = runOnce(context.Background(), reg, cfg, time.Millisecond, time.Minute, lockDir)
	require.NoError(t, err)

	_, statErr := os.Stat(old)
	require.True(t, os.IsNotExist(statErr))
}

func TestSecondLeaseAcquireFailsWhileFirstHeld(t *testing.T) {
	lockDir := t.TempDir()
	lease := NewFileLease(lockDir)
	acquired, err := lease.Acquire("owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired2, err := lease.Acquire("owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired2)

	require.NoError(t, lease.Release("owner-a"))
}
