// Package bytestream implements the Bytestream component: a logical
// byte sequence per handle, addressed with scatter-gather lists, served
// through a pluggable async-I/O backend contract
// {submit, poll, cancel, suspend}. Grounded on the original source's
// dbpf-alt-aio.c (real kernel AIO) and dbpf-null-aio.c (thread-pool
// emulation) for the backend contract, and dbpf-collection.c's
// 64-bucket handle hashing for the on-disk file layout.
package bytestream

// MemSegment is one contiguous in-memory buffer participating in a
// scatter-gather transfer.
type MemSegment struct {
	Buf []byte
}

// StreamSegment is one contiguous range of the logical bytestream
// participating in a scatter-gather transfer.
type StreamSegment struct {
	Offset int64
	Length int64
}

// SGList pairs independent memory and stream segment vectors: the two
// need not have matching segment counts, only matching total byte
// lengths. Walk reconciles the two by tracking a byte cursor into the
// current memory segment as stream segments are consumed, the way the
// original source's dbpf-alt-aio.c/dbpf-null-aio.c do.
type SGList struct {
	Mem    []MemSegment
	Stream []StreamSegment
}

// Validate checks that the two vectors move the same number of bytes in
// total. Segment counts are free to differ.
func (l SGList) Validate() error {
	if l.TotalLength() != l.MemTotalLength() {
		return errMismatchedSegments
	}
	return nil
}

// TotalLength returns the sum of all stream segment lengths.
func (l SGList) TotalLength() int64 {
	var total int64
	for _, s := range l.Stream {
		total += s.Length
	}
	return total
}

// MemTotalLength returns the sum of all memory segment lengths.
func (l SGList) MemTotalLength() int64 {
	var total int64
	for _, m := range l.Mem {
		total += int64(len(m.Buf))
	}
	return total
}

// Walk visits the transfer chunk by chunk, calling fn once per chunk with
// the memory slice to move and the stream offset it corresponds to. A
// chunk never crosses a mem-segment or stream-segment boundary, so its
// length is the lesser of the bytes remaining in the current segment on
// each side. Callers must Validate first; Walk itself only guards against
// running out of memory bytes before the stream vector is satisfied.
func (l SGList) Walk(fn func(buf []byte, streamOffset int64) error) error {
	memIdx, memOff := 0, 0
	for _, seg := range l.Stream {
		remain := seg.Length
		streamOff := seg.Offset
		for remain > 0 {
			for memIdx < len(l.Mem) && memOff >= len(l.Mem[memIdx].Buf) {
				memIdx++
				memOff = 0
			}
			if memIdx >= len(l.Mem) {
				return errSegmentLengthMismatch
			}
			avail := int64(len(l.Mem[memIdx].Buf) - memOff)
			chunk := remain
			if avail < chunk {
				chunk = avail
			}
			if err := fn(l.Mem[memIdx].Buf[memOff:memOff+int(chunk)], streamOff); err != nil {
				return err
			}
			memOff += int(chunk)
			streamOff += chunk
			remain -= chunk
		}
	}
	return nil
}
