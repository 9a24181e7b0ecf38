package dataspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"parafs/pkg/perr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "dspace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetAttr(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(1, Attributes{Type: TypeMetafile, Size: 100}))

	a, err := s.GetAttr(1)
	require.NoError(t, err)
	require.Equal(t, TypeMetafile, a.Type)
	require.EqualValues(t, 100, a.Size)
	require.False(t, a.CTime.IsZero())
}

func TestCreateDuplicateHandleFails(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(1, Attributes{Type: TypeDirectory}))
	err := s.Create(1, Attributes{Type: TypeDirectory})
	require.True(t, perr.Is(err, perr.Exists))
}

func TestSetAttrIsAtomicReadModifyWrite(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(2, Attributes{Type: TypeMetafile, Size: 10}))

	err := s.SetAttr(2, func(a Attributes) Attributes {
		a.Size += 5
		return a
	})
	require.NoError(t, err)

	a, err := s.GetAttr(2)
	require.NoError(t, err)
	require.EqualValues(t, 15, a.Size)
}

func TestRemoveThenGetFails(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(3, Attributes{Type: TypeSymlink}))
	require.NoError(t, s.Remove(3))

	_, err := s.GetAttr(3)
	require.True(t, perr.Is(err, perr.NotFound))
}

func TestIterateVisitsAllHandles(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(1, Attributes{Type: TypeDirectory}))
	require.NoError(t, s.Create(2, Attributes{Type: TypeMetafile}))
	require.NoError(t, s.Create(3, Attributes{Type: TypeDatafile}))

	seen := map[Handle]Type{}
	err := s.Iterate(func(h Handle, a Attributes) bool {
		seen[h] = a.Type
		return true
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	require.Equal(t, TypeMetafile, seen[2])
}
