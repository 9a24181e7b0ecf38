package bytestream

import (
	"os"

	"parafs/pkg/perr"
)

var (
	errMismatchedSegments    = perr.New("bytestream", perr.InvalidArg, "total mem bytes does not equal total stream bytes")
	errSegmentLengthMismatch = perr.New("bytestream", perr.InvalidArg, "mem segments exhausted before stream segments were satisfied")
)

// OpKind distinguishes a read from a write request at the backend level.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

// Request is one scatter-gather transfer submitted to a Backend.
type Request struct {
	Kind  OpKind
	File  *os.File
	SG    SGList
	token int64
}

// Completion reports the outcome of a previously submitted Request.
type Completion struct {
	Token  int64
	Bytes  int64
	Err    error
}

// Backend is the pluggable async-I/O contract every bytestream transfer
// goes through: submit queues work, poll drains completions, cancel
// requests early termination of an in-flight transfer, and suspend waits
// for quiescence (used during collection shutdown/migration). Mirrors
// the function-pointer table dbpf-alt-aio.c and dbpf-null-aio.c both
// implement in the original source.
type Backend interface {
	Submit(req *Request) (token int64, err error)
	Poll() []Completion
	Cancel(token int64) error
	Suspend() error
	Close() error
}
