package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/latticesearch/latticed/pkg/config"
	"github.com/latticesearch/latticed/pkg/dump"
	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/log"
	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/retention"
	"github.com/latticesearch/latticed/pkg/snapshot"
	"github.com/latticesearch/latticed/pkg/updateloop"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

// Version information (set via ldflags during build).
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "latticed",
	Short:   "latticed is the update and dump control plane for a lattice search index server",
	Version: fmt.Sprintf("%s (%s)", Version, Commit),
}

func init() {
	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the update loop, dump actor and retention sweeper for one data directory",
	Long: `serve wires the Update Store, Update File Store and Update Loop over a
single data directory, starts the retention sweeper, and exposes the dump
control surface plus /metrics, /health, /ready and /live until it receives
SIGINT or SIGTERM.

latticed does not itself resolve index uids to the embedded search engine;
that collaborator is out of this module's scope (see pkg/resolver) and a
production deployment supplies its own implementation. serve wires
resolver.Fake here purely so the pipeline has something to drive end to
end.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromFlags(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.InitLogging()

	logger := log.WithComponent("main")
	logger.Info().Str("data_dir", cfg.DataDir).Msg("starting latticed")

	metrics.SetVersion(Version)

	files, err := filestore.New(cfg.FileStoreDir())
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	metrics.RegisterComponent("filestore", true, "ready")

	res := resolver.NewFake()

	store, err := updatestore.Open(updatestore.Config{
		Path:           cfg.UpdateDBPath(),
		MapSizeBytes:   cfg.UpdateDBSizeBytes,
		Resolver:       res,
		FileStore:      files,
		RetentionGrace: time.Duration(cfg.RetentionGraceSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open update store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("updatestore", true, "ready")

	loop := updateloop.New(store, files)
	loop.Run()
	defer loop.Close()

	sweeper := retention.NewSweeper(store, files, time.Duration(cfg.RetentionGraceSeconds)*time.Second)
	sweeper.Start()
	defer sweeper.Stop()

	dumps := dump.NewActor(cfg.DumpsDir(), res, loop)
	metrics.RegisterComponent("dump-actor", true, "ready")

	stopSnapshots := make(chan struct{})
	if cfg.ScheduleSnapshot != "" {
		interval, err := time.ParseDuration(cfg.ScheduleSnapshot)
		if err != nil {
			return fmt.Errorf("parse --schedule-snapshot: %w", err)
		}
		go runSnapshotScheduler(loop, res, cfg.DataDir, interval, stopSnapshots, logger)
	}
	defer close(stopSnapshots)

	httpServer := newControlServer(cfg.MetricsAddr, dumps)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("control server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("control server failed")
		return err
	}

	if err := httpServer.Close(); err != nil {
		logger.Warn().Err(err).Msg("control server close error")
	}

	return nil
}

// newControlServer builds the HTTP mux serving metrics, health and the
// narrow dump control surface (create/poll), the only request path this
// binary exposes itself; document ingestion's HTTP surface is an external
// collaborator per the package-level scope note.
func newControlServer(addr string, dumps *dump.Actor) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	mux.HandleFunc("/dumps", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		info := dumps.CreateDump()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	})

	mux.HandleFunc("/dumps/", func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimPrefix(r.URL.Path, "/dumps/")
		info, err := dumps.Info(uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// runSnapshotScheduler fires snapshot.Create against every index the
// resolver currently knows about on a fixed interval, until stop is closed.
func runSnapshotScheduler(loop *updateloop.Loop, res resolver.Resolver, dataDir string, interval time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	snapshotsDir := filepath.Join(dataDir, "snapshots")

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			uids, err := res.ListAllUIDs()
			if err != nil {
				logger.Error().Err(err).Msg("scheduled snapshot: list indexes")
				continue
			}
			path, err := snapshot.Create(loop, snapshotsDir, uids, now.UTC().Format("20060102T150405Z"))
			if err != nil {
				logger.Error().Err(err).Msg("scheduled snapshot failed")
				continue
			}
			logger.Info().Str("path", path).Int("indexes", len(uids)).Msg("scheduled snapshot done")
		}
	}
}
