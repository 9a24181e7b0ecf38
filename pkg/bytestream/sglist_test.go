package bytestream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSGListWalkNeverCrossesASegmentBoundary(t *testing.T) {
	sg := SGList{
		Mem: []MemSegment{
			{Buf: make([]byte, 3)},
			{Buf: make([]byte, 5)},
			{Buf: make([]byte, 2)},
		},
		Stream: []StreamSegment{
			{Offset: 100, Length: 4},
			{Offset: 200, Length: 6},
		},
	}
	var chunks []int
	var offsets []int64
	require.NoError(t, sg.Walk(func(buf []byte, streamOffset int64) error {
		chunks = append(chunks, len(buf))
		offsets = append(offsets, streamOffset)
		return nil
	}))
	// mem segments are [3,5,2]; stream segments are [4,6]. Walking must
	// split at every mem AND stream boundary: 3 (rest of first mem seg),
	// then 1 (finishes the 4-byte stream seg using 1 byte of the second
	// mem seg), then 4 (rest of second mem seg), then 2 (last mem seg).
	require.Equal(t, []int{3, 1, 4, 2}, chunks)
	require.Equal(t, []int64{100, 103, 200, 204}, offsets)
}

func TestSGListWalkStopsWhenMemExhausted(t *testing.T) {
	sg := SGList{
		Mem:    []MemSegment{{Buf: make([]byte, 2)}},
		Stream: []StreamSegment{{Offset: 0, Length: 4}},
	}
	err := sg.Walk(func(buf []byte, streamOffset int64) error { return nil })
	require.Error(t, err)
}
