package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"samledger/internal/blob"
	"samledger/internal/config"
	"samledger/internal/core"
	"samledger/internal/infra/persistence/memory"
	"samledger/internal/logging"
	"samledger/internal/seed"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var newLogger = logging.New

// app carries what one samctl invocation shares between its commands.
type app struct {
	stdout io.Writer

	configPath  string
	metricsFile string
	saveFixture string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	blobs    blob.Store
	snapshot memory.Snapshot
	store    *memory.Store
	ledger   *core.Service
}

// setup loads configuration, seeds the ledger, and wires logging and metrics.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.metricsFile == "" {
		a.metricsFile = cfg.Metrics.Textfile
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger

	seedCfg := cfg.SeedSource()
	var blobs blob.Store
	if seedCfg.Driver == seed.DriverBlob {
		if blobs, err = a.blobStore(ctx); err != nil {
			return err
		}
	}
	src, err := seed.Open(ctx, seedCfg, blobs)
	if err != nil {
		return fmt.Errorf("open seed source: %w", err)
	}
	snapshot, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}
	a.snapshot = snapshot
	logger.Debug("ledger seeded",
		zap.String("driver", seedCfg.Driver),
		zap.String("postgres_dsn", logging.SanitizeDSN(seedCfg.PostgresDSN)),
		zap.Int("pools", len(snapshot.Pools)),
		zap.Int("allocations", len(snapshot.Allocations)))

	a.registry = prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(a.registry, cfg.Metrics.Namespace)
	if err != nil {
		return err
	}
	a.store = core.NewMemoryStore(core.NewDefaultRulesEngine())
	a.store.ImportState(snapshot)
	a.ledger = core.NewService(a.store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithActor(core.Actor{ID: cfg.Actor.ID, Name: cfg.Actor.Name}))
	if err := a.registry.Register(core.NewPoolCapacityCollector(a.store, cfg.Metrics.Namespace)); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	return nil
}

// blobStore opens the configured blob store on first use.
func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	store, err := blob.Open(ctx, a.cfg.BlobStore())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a.blobs = store
	return store, nil
}

// teardown exports metrics and the ledger state when requested.
func (a *app) teardown() error {
	if a.logger != nil {
		defer func() { _ = a.logger.Sync() }()
	}
	if a.saveFixture != "" && a.store != nil {
		if err := writeFixture(a.saveFixture, a.store.ExportState()); err != nil {
			return err
		}
	}
	if a.metricsFile != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func writeFixture(path string, snapshot memory.Snapshot) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	return seed.Encode(f, seed.FromSnapshot(snapshot))
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
