// Package idreg is the ID Registry: a generational slab allocator mapping
// opaque int64 IDs to arbitrary values. It replaces the pointer-cast fast
// IDs of the original source (trove-handle-mgmt.c's handle-table
// bookkeeping) with a generation-checked slot table, so a stale ID from a
// reused slot is reported as not-found instead of silently resolving to
// the wrong value.
package idreg

import (
	"sync"

	"parafs/pkg/perr"
)

const genShift = 32

type slot struct {
	generation uint32
	occupied   bool
	value      any
}

// Registry is a generation-checked slab of IDs. The zero value is not
// usable; call New.
type Registry struct {
	mu      sync.RWMutex
	slots   []slot
	freeIDs []uint32
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register inserts value and returns a fresh ID. IDs are never reused
// until their generation wraps (effectively never, at 2^32 reuses of one
// slot), so a caller holding a stale ID from a Remove'd slot always gets
// a perr.NotFound error rather than another caller's value.
func (r *Registry) Register(value any) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var index uint32
	if n := len(r.freeIDs); n > 0 {
		index = r.freeIDs[n-1]
		r.freeIDs = r.freeIDs[:n-1]
		r.slots[index].occupied = true
		r.slots[index].value = value
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, slot{generation: 1, occupied: true, value: value})
	}
	gen := r.slots[index].generation
	return int64(gen)<<genShift | int64(index)
}

// Lookup resolves id to its value. It returns perr.NotFound if id was
// never registered, has been removed, or belongs to a stale generation.
func (r *Registry) Lookup(id int64) (any, error) {
	index, gen := split(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(index) >= len(r.slots) {
		return nil, perr.New("idreg", perr.NotFound, "id out of range")
	}
	s := &r.slots[index]
	if !s.occupied || s.generation != gen {
		return nil, perr.New("idreg", perr.NotFound, "stale or removed id")
	}
	return s.value, nil
}

// Remove evicts id's slot, bumping its generation so any outstanding copy
// of id becomes stale. Returns perr.NotFound if id is already absent.
func (r *Registry) Remove(id int64) error {
	index, gen := split(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(index) >= len(r.slots) {
		return perr.New("idreg", perr.NotFound, "id out of range")
	}
	s := &r.slots[index]
	if !s.occupied || s.generation != gen {
		return perr.New("idreg", perr.NotFound, "stale or removed id")
	}
	s.occupied = false
	s.value = nil
	s.generation++
	r.freeIDs = append(r.freeIDs, index)
	return nil
}

// Len returns the number of currently registered IDs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.freeIDs)
}

func split(id int64) (index uint32, generation uint32) {
	return uint32(id), uint32(id >> genShift)
}
