package worker

import (
	"context"

	"parafs/pkg/op"
)

// Blocking services each op inline on the Post caller's goroutine, the
// way pint-worker-blocking.c runs a service callout to completion before
// returning from post. Appropriate for ops whose Service never yields
// (pure in-memory work, or a backend call the caller is happy to block on).
type Blocking struct{}

func NewBlocking() *Blocking { return &Blocking{} }

func (b *Blocking) Post(o *op.Op, complete func(*op.Op)) error {
	serviceOnce(o)
	for o.State == op.StateQueued {
		serviceOnce(o)
	}
	complete(o)
	return nil
}

func (b *Blocking) Start(ctx context.Context) {}
func (b *Blocking) Stop()                     {}

// Cancel always reports false: Post already ran o to completion
// synchronously by the time it returns, so there is never anything
// queued to rewrite.
func (b *Blocking) Cancel(o *op.Op) bool { return false }
