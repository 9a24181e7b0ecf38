package keyval

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"parafs/pkg/perr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "kv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(1, 'a', []byte("name"), []byte("foo"), 0))

	v, err := s.Get(1, 'a', []byte("name"))
	require.NoError(t, err)
	require.Equal(t, "foo", string(v))

	require.NoError(t, s.Delete(1, 'a', []byte("name"), 0))
	_, err = s.Get(1, 'a', []byte("name"))
	require.True(t, perr.Is(err, perr.NotFound))
}

func TestNoOverwriteFlag(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(1, 'a', []byte("k"), []byte("v1"), 0))
	err := s.Put(1, 'a', []byte("k"), []byte("v2"), NoOverwrite)
	require.True(t, perr.Is(err, perr.Exists))

	v, err := s.Get(1, 'a', []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))
}

func TestBinaryKeyFlagRequired(t *testing.T) {
	s := openTestStore(t)
	badKey := []byte("has\x00nul")
	err := s.Put(1, 'a', badKey, []byte("v"), 0)
	require.True(t, perr.Is(err, perr.InvalidArg))

	require.NoError(t, s.Put(1, 'a', badKey, []byte("v"), BinaryKey))
	v, err := s.Get(1, 'a', badKey)
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

func TestListOrderingAndCursorResume(t *testing.T) {
	s := openTestStore(t)
	keys := []string{"b", "aa", "a", "ccc"}
	for _, k := range keys {
		require.NoError(t, s.Put(5, 'k', []byte(k), []byte(k), 0))
	}

	var cur Cursor
	first, err := s.List(5, 'k', &cur, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := s.List(5, 'k', &cur, 10)
	require.NoError(t, err)

	var all []string
	for _, e := range append(first, rest...) {
		all = append(all, string(e.Key))
	}
	require.Len(t, all, 4)
	// shorter keys sort before longer keys of the same handle/type,
	// matching (handle, type-byte, length, bytes) order.
	require.Equal(t, "a", all[0])
}

func TestListScopedToHandleAndType(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(1, 'a', []byte("x"), []byte("1a"), 0))
	require.NoError(t, s.Put(1, 'b', []byte("x"), []byte("1b"), 0))
	require.NoError(t, s.Put(2, 'a', []byte("x"), []byte("2a"), 0))

	var cur Cursor
	entries, err := s.List(1, 'a', &cur, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "1a", string(entries[0].Value))
}

func TestPutListAtomic(t *testing.T) {
	s := openTestStore(t)
	entries := []Entry{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v2")},
	}
	require.NoError(t, s.PutList(9, 'l', entries, 0))

	v1, err := s.Get(9, 'l', []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))
	v2, err := s.Get(9, 'l', []byte("k2"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v2))
}
