package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"parafs/internal/retention"
	"parafs/pkg/collection"
	"parafs/pkg/plog"
)

var fsckCollection string

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "run an immediate purgatory and stranded-bytestream sweep",
	RunE:  runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
	fsckCmd.Flags().StringVar(&fsckCollection, "collection", "", "collection to sweep (default: the configured default collection)")
}

func runFsck(_ *cobra.Command, _ []string) error {
	plog.Init()
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	name := fsckCollection
	if name == "" {
		name = cfg.Collection.DefaultCollection
	}

	backend, err := newAsyncBackend(cfg.Worker.AsyncIO)
	if err != nil {
		return fmt.Errorf("construct async backend: %w", err)
	}
	reg := collection.NewRegistry(cfg.Collection.RootDir, collection.Config{
		HandleSpaceStart: 1,
		HandleSpaceEnd:   1 << 40,
		PurgatoryBucket:  cfg.Collection.PurgatoryWindow.Duration(),
		AsyncBackend:     backend,
	})
	if _, err := reg.Open(name); err != nil {
		return fmt.Errorf("open collection %q: %w", name, err)
	}
	defer reg.Release(name)

	lockDir := filepath.Join(cfg.Collection.RootDir, name, ".fsck-lock")
	if err := retention.RunImmediate(reg, cfg.Collection, cfg.Retention, lockDir); err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Printf("fsck complete for collection %q\n", name)
	return nil
}
