// Package op defines the Op descriptor shared by the queue, context,
// worker and manager packages: an id, service/cancel callbacks, an opaque
// pointer, a hint bag, and timestamps. Each Op carries a scratch buffer
// drawn from a bytebufferpool pool, the way the teacher's
// pkg/ingest/queue/types.go pools its Op/Item payloads; Ops themselves
// and hint values are plain allocations.
package op

import (
	"time"

	"github.com/valyala/bytebufferpool"
)

// State is the lifecycle state of an Op as tracked by the manager.
type State int

const (
	StateUnposted State = iota
	StateQueued
	StateInService
	StateCompleted
	StateCanceled
	StateErrored
)

// ServiceFunc performs the op's work. It returns true when the op has
// completed synchronously; false means the op is still in flight and the
// worker should poll again (or the op will call back via its context).
type ServiceFunc func(o *Op) (done bool, err error)

// CancelFunc requests early termination of an in-flight op. Not every op
// supports cancellation; a nil CancelFunc means cancel is a no-op.
type CancelFunc func(o *Op) error

// Hint is one typed key/value pair in an op's hint bag, e.g. a request-id
// tag or a routing affinity key. Hints are deep-copied when an Op is
// cloned so callers can safely reuse a template Op across many posts.
type Hint struct {
	TypeName string
	Value    []byte
}

// Op is the unit of work posted through the op-management core. Pointer
// identity matters: callers hold onto *Op across post/wait/test calls.
type Op struct {
	ID       int64
	Service  ServiceFunc
	Cancel   CancelFunc
	Opaque   any
	Hints    []Hint
	State    State
	Err      error
	PostedAt time.Time
	DoneAt   time.Time

	buf *bytebufferpool.ByteBuffer
}

var bufPool bytebufferpool.Pool

// New allocates an Op with the given service/cancel callbacks. The
// returned Op owns a pooled scratch buffer accessible via Buffer(),
// released back to the pool on Release().
func New(service ServiceFunc, cancel CancelFunc, opaque any) *Op {
	return &Op{
		Service: service,
		Cancel:  cancel,
		Opaque:  opaque,
		buf:     bufPool.Get(),
	}
}

// Buffer returns the op's pooled scratch buffer, for service callbacks
// that need a reusable byte sink (e.g. building a keyval value).
func (o *Op) Buffer() *bytebufferpool.ByteBuffer { return o.buf }

// AddHint appends a typed hint to the op's hint bag, copying value so the
// caller's slice can be reused or freed immediately after the call.
func (o *Op) AddHint(typeName string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	o.Hints = append(o.Hints, Hint{TypeName: typeName, Value: cp})
}

// Hint looks up the first hint with the given type name.
func (o *Op) Hint(typeName string) ([]byte, bool) {
	for _, h := range o.Hints {
		if h.TypeName == typeName {
			return h.Value, true
		}
	}
	return nil, false
}

// Clone deep-copies o, including its hint bag, but allocates a fresh
// pooled buffer and resets lifecycle fields. Used by callers that keep a
// template Op and post many independent copies of it.
func (o *Op) Clone() *Op {
	n := &Op{
		Service: o.Service,
		Cancel:  o.Cancel,
		Opaque:  o.Opaque,
		buf:     bufPool.Get(),
	}
	if len(o.Hints) > 0 {
		n.Hints = make([]Hint, len(o.Hints))
		for i, h := range o.Hints {
			cp := make([]byte, len(h.Value))
			copy(cp, h.Value)
			n.Hints[i] = Hint{TypeName: h.TypeName, Value: cp}
		}
	}
	return n
}

// Release returns the op's pooled buffer to the pool. Callers must not
// touch the Op after calling Release.
func (o *Op) Release() {
	if o.buf != nil {
		bufPool.Put(o.buf)
		o.buf = nil
	}
}
