package bytestream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/perr"
)

func waitForCompletion(t *testing.T, s *Store, token int64) Completion {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range s.Poll() {
			if c.Token == token {
				return c
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("completion did not arrive in time")
	return Completion{}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend := NewThreadBackend(4)
	s, err := Open(t.TempDir(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))

	writeBuf := []byte("hello world")
	wToken, err := s.Submit(1, OpWrite, SGList{
		Mem:    []MemSegment{{Buf: writeBuf}},
		Stream: []StreamSegment{{Offset: 0, Length: int64(len(writeBuf))}},
	})
	require.NoError(t, err)
	c := waitForCompletion(t, s, wToken)
	require.NoError(t, c.Err)
	require.EqualValues(t, len(writeBuf), c.Bytes)

	readBuf := make([]byte, len(writeBuf))
	rToken, err := s.Submit(1, OpRead, SGList{
		Mem:    []MemSegment{{Buf: readBuf}},
		Stream: []StreamSegment{{Offset: 0, Length: int64(len(readBuf))}},
	})
	require.NoError(t, err)
	c = waitForCompletion(t, s, rToken)
	require.NoError(t, c.Err)
	require.Equal(t, "hello world", string(readBuf))
}

func TestSubmitToMissingHandleFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Submit(999, OpRead, SGList{})
	require.True(t, perr.Is(err, perr.NotFound))
}

func TestCreateDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(5))
	err := s.Create(5)
	require.True(t, perr.Is(err, perr.Exists))
}

func TestStrandMovesFileInsteadOfDeleting(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(7))
	require.NoError(t, s.Strand(7))

	_, err := s.Submit(7, OpRead, SGList{})
	require.True(t, perr.Is(err, perr.NotFound))

	_, err = os.Stat(filepath.Join(s.StrandedDir(), "0000000000000007.bstream"))
	require.NoError(t, err)
}

func TestSGListValidateRejectsTotalByteMismatch(t *testing.T) {
	sg := SGList{
		Mem:    []MemSegment{{Buf: make([]byte, 4)}},
		Stream: []StreamSegment{{Offset: 0, Length: 8}},
	}
	require.Error(t, sg.Validate())
}

func TestWriteListReadListWithMismatchedSegmentCounts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(2))

	content := []byte("0123456789abcd") // 14 bytes
	mem := func(lens ...int) []MemSegment {
		segs := make([]MemSegment, 0, len(lens))
		off := 0
		for _, l := range lens {
			segs = append(segs, MemSegment{Buf: append([]byte(nil), content[off:off+l]...)})
			off += l
		}
		return segs
	}
	// 7 mem segments against 5 stream segments, out-of-order offsets,
	// mirroring the scatter-gather mismatch scenario.
	wToken, err := s.Submit(2, OpWrite, SGList{
		Mem: mem(2, 2, 2, 2, 2, 2, 2),
		Stream: []StreamSegment{
			{Offset: 0, Length: 2},
			{Offset: 2, Length: 2},
			{Offset: 8, Length: 4},
			{Offset: 4, Length: 4},
			{Offset: 12, Length: 2},
		},
	})
	require.NoError(t, err)
	c := waitForCompletion(t, s, wToken)
	require.NoError(t, c.Err)
	require.EqualValues(t, len(content), c.Bytes)

	readBuf1 := make([]byte, 5)
	readBuf2 := make([]byte, 9)
	rToken, err := s.Submit(2, OpRead, SGList{
		Mem:    []MemSegment{{Buf: readBuf1}, {Buf: readBuf2}},
		Stream: []StreamSegment{{Offset: 0, Length: int64(len(content))}},
	})
	require.NoError(t, err)
	c = waitForCompletion(t, s, rToken)
	require.NoError(t, c.Err)
	// Mem bytes land at their stream offsets: "4567" went to [8,12) and
	// "89ab" to [4,8), so reading [0,14) back yields them swapped.
	require.Equal(t, []byte("012389ab4567cd"), append(readBuf1, readBuf2...))
}

func TestSGListValidateAcceptsMismatchedSegmentCounts(t *testing.T) {
	mib := 1 << 20
	sg := SGList{
		Mem: []MemSegment{
			{Buf: make([]byte, mib)}, {Buf: make([]byte, mib)}, {Buf: make([]byte, mib)},
			{Buf: make([]byte, mib)}, {Buf: make([]byte, mib)}, {Buf: make([]byte, mib)},
			{Buf: make([]byte, mib)},
		},
		Stream: []StreamSegment{
			{Offset: 0, Length: int64(mib)},
			{Offset: int64(mib), Length: int64(mib)},
			{Offset: int64(4 * mib), Length: int64(2 * mib)},
			{Offset: int64(2 * mib), Length: int64(2 * mib)},
			{Offset: int64(6 * mib), Length: int64(mib)},
		},
	}
	require.NoError(t, sg.Validate())
}
