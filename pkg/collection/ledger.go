// Package collection implements the Collection registry component: a
// process-wide refcounted table of open collections, each owning its own
// dataspace/keyval/bytestream stores and a handle ledger. Grounded on the original source's trove-handle-mgmt.c for the
// extent-freelist-plus-purgatory ledger design.
package collection

import (
	"sort"
	"sync"
	"time"
)

// Extent is an inclusive range of free handles.
type Extent struct {
	Start uint64
	End   uint64
}

const purgatoryBuckets = 64

// HandleLedger tracks which handles in a collection are allocated, free,
// or sitting in purgatory (freed but not yet safe to reissue, because an
// in-flight reader might still hold a reference). Freed handles are
// grouped into purgatoryBuckets buckets keyed by free time; a sweep
// still checks every entry in every bucket against the window.
type HandleLedger struct {
	mu         sync.Mutex
	free       []Extent
	purgatory  [purgatoryBuckets][]purgatoryEntry
	bucketWidth time.Duration
	nextCursor int
}

type purgatoryEntry struct {
	handle  uint64
	freedAt time.Time
}

// NewHandleLedger creates a ledger whose free handle space is
// [start, end] and whose purgatory sweep buckets span bucketWidth each.
func NewHandleLedger(start, end uint64, bucketWidth time.Duration) *HandleLedger {
	return &HandleLedger{
		free:        []Extent{{Start: start, End: end}},
		bucketWidth: bucketWidth,
	}
}

// Allocate removes and returns the lowest free handle. Returns ok=false
// if the free space is exhausted.
func (l *HandleLedger) Allocate() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.free) == 0 {
		return 0, false
	}
	e := &l.free[0]
	h := e.Start
	if e.Start == e.End {
		l.free = l.free[1:]
	} else {
		e.Start++
	}
	return h, true
}

// Free moves handle into purgatory rather than directly back onto the
// free list, so any reader that looked it up just before removal has a
// purgatoryWindow-long grace period before the handle can be reissued.
func (l *HandleLedger) Free(handle uint64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket := l.bucketFor(now)
	l.purgatory[bucket] = append(l.purgatory[bucket], purgatoryEntry{handle: handle, freedAt: now})
}

func (l *HandleLedger) bucketFor(t time.Time) int {
	if l.bucketWidth <= 0 {
		return 0
	}
	return int((t.UnixNano() / int64(l.bucketWidth)) % purgatoryBuckets)
}

// SweepPurgatory releases every purgatory entry older than window back
// onto the free list, merging adjacent extents, and returns how many
// handles were released.
func (l *HandleLedger) SweepPurgatory(now time.Time, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := 0
	for b := range l.purgatory {
		kept := l.purgatory[b][:0]
		for _, e := range l.purgatory[b] {
			if now.Sub(e.freedAt) >= window {
				l.insertFreeLocked(e.handle)
				released++
			} else {
				kept = append(kept, e)
			}
		}
		l.purgatory[b] = kept
	}
	return released
}

func (l *HandleLedger) insertFreeLocked(h uint64) {
	l.free = append(l.free, Extent{Start: h, End: h})
	sort.Slice(l.free, func(i, j int) bool { return l.free[i].Start < l.free[j].Start })
	merged := l.free[:0]
	for _, e := range l.free {
		if len(merged) > 0 && merged[len(merged)-1].End+1 >= e.Start {
			if e.End > merged[len(merged)-1].End {
				merged[len(merged)-1].End = e.End
			}
			continue
		}
		merged = append(merged, e)
	}
	l.free = merged
}

// PurgatoryCount returns the number of handles currently held in
// purgatory across all buckets.
func (l *HandleLedger) PurgatoryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.purgatory {
		n += len(b)
	}
	return n
}

// FreeCount returns the number of handles currently available for
// allocation.
func (l *HandleLedger) FreeCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n uint64
	for _, e := range l.free {
		n += e.End - e.Start + 1
	}
	return n
}
