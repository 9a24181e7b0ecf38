package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfgPath string
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:     "parafsd",
	Short:   "parafs server and admin CLI",
	Long:    `parafsd runs the parafs op-management core and storage engine, and provides fsck/migrate admin subcommands.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./parafs.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "collection table root directory (overrides config)")
}
