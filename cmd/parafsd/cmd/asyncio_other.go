//go:build !linux

package cmd

import (
	"fmt"

	"parafs/pkg/bytestream"
	"parafs/pkg/config"
)

func newAsyncBackend(cfg config.AsyncIOConfig) (bytestream.Backend, error) {
	switch cfg.Backend {
	case "", "thread":
		return bytestream.NewThreadBackend(cfg.QueueDepth), nil
	case "iouring":
		return nil, fmt.Errorf("iouring async_io backend is only available on linux")
	default:
		return nil, fmt.Errorf("unknown async_io backend %q", cfg.Backend)
	}
}
