package cmd

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"parafs/internal/retention"
	"parafs/pkg/collection"
	"parafs/pkg/config"
	"parafs/pkg/keyval"
	"parafs/pkg/metrics"
	"parafs/pkg/op"
	"parafs/pkg/opmgr"
	"parafs/pkg/plog"
	"parafs/pkg/shutdown"
	"parafs/pkg/state"
	"parafs/pkg/storageops"
	"parafs/pkg/telemetry"
	"parafs/pkg/worker"
)

// serviceMetaType is the keyval type byte reserved for process-level
// bookkeeping entries (handle 0) rather than any filesystem object's own
// attributes, keyed under the collection's default handle namespace.
const serviceMetaType = 0xff

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the parafs op-management core and storage engine",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func loadEffectiveConfig() (*config.Config, error) {
	flags := config.Flags{Config: cfgPath, RootDir: rootDir, Set: map[string]bool{}}
	if rootCmd.PersistentFlags().Changed("config") {
		flags.Set["config"] = true
	}
	if rootDir != "" {
		flags.Set["root"] = true
	}
	path := config.ResolveConfigPath(flags)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(cfg, flags)
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	plog.Init()

	cfg, err := loadEffectiveConfig()
	if err != nil {
		shutdown.Abort("failed to load config", err, "")
	}
	plog.InitLevel(cfg.Logging.Level)

	dbPath := cfg.Collection.RootDir
	if err := state.EnsureStateDirs(dbPath); err != nil {
		shutdown.Abort("failed to ensure state directories", err, dbPath)
	}
	state.Init(dbPath)

	if err := plog.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		plog.Warn("audit_sink_unavailable", "error", err)
	}

	numCPU := runtime.NumCPU()
	plog.Info("system_logical_cores", "logical_cores", numCPU)

	backend, err := newAsyncBackend(cfg.Worker.AsyncIO)
	if err != nil {
		shutdown.Abort("failed to construct async I/O backend", err, dbPath)
	}

	reg := collection.NewRegistry(dbPath, collection.Config{
		HandleSpaceStart: 1,
		HandleSpaceEnd:   1 << 40,
		PurgatoryBucket:  cfg.Collection.PurgatoryWindow.Duration(),
		AsyncBackend:     backend,
	})
	defaultCol, err := reg.Open(cfg.Collection.DefaultCollection)
	if err != nil {
		shutdown.Abort("failed to open default collection", err, dbPath)
	}

	mgr := opmgr.New()
	threaded := worker.NewThreadedQueues(cfg.Worker.ThreadedQueues.ThreadCount)
	pool := worker.NewPool(cfg.Worker.ThreadedQueues.ThreadCount)
	mgr.Bind(func(o *op.Op) bool {
		_, ok := o.Hint("bulk")
		return ok
	}, pool)
	mgr.Bind(func(*op.Op) bool { return true }, threaded)
	telemetry.AttachToManager(mgr)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	mgr.StartAll(ctx)
	defer mgr.StopAll()

	storageClient := storageops.New(mgr, defaultCol)
	startMarker := time.Now().UTC().Format(time.RFC3339)
	if err := storageClient.PutKeyval(ctx, keyval.Handle(0), serviceMetaType, []byte("last_start"), []byte(startMarker), 0); err != nil {
		plog.Warn("service_start_marker_failed", "error", err)
	}

	retentionCancel, err := retention.Start(ctx, reg, cfg.Collection, cfg.Retention, state.PathsVar.Retention)
	if err != nil {
		shutdown.Abort("failed to start retention sweeper", err, dbPath)
	}
	defer retentionCancel()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				plog.Error("metrics_server_failed", "error", err)
			}
		}()
		plog.Info("metrics_listening", "addr", cfg.Metrics.Addr)
	}

	plog.Info("parafsd_started", "root_dir", dbPath, "default_collection", cfg.Collection.DefaultCollection)
	<-ctx.Done()
	plog.Info("parafsd_shutting_down")

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := reg.Release(cfg.Collection.DefaultCollection); err != nil {
		plog.Error("default_collection_release_failed", "error", err)
	}
	return nil
}
