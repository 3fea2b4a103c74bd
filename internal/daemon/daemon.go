// Package daemon ties the pipeline, archive, and API together behind a
// singleton file lock, so exactly one earmarkd owns a data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"earmark/internal/api"
	"earmark/internal/archive"
	"earmark/internal/clients"
	"earmark/internal/config"
	"earmark/internal/logging"
	"earmark/internal/metrics"
	"earmark/internal/pipeline"
	"earmark/internal/pubsub"
	"earmark/internal/research"
)

// ErrAlreadyRunning indicates another daemon holds the data directory lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Daemon owns the long-running services.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock

	store    *archive.Store
	hub      *pubsub.Hub[archive.StreamView]
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	server   *api.Server
}

// New builds a daemon: acquires the singleton lock, opens the archive, and
// wires the pipeline and API. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	release := true
	defer func() {
		if release {
			_ = lock.Unlock()
		}
	}()

	set, err := clients.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := archive.NewStore(cfg.ArchivePath(), logger)
	if err != nil {
		return nil, err
	}

	hub := pubsub.NewHub[archive.StreamView](cfg.Pipeline.SubscriberMailbox)
	m := metrics.New()
	p := pipeline.New(cfg, set, store, hub, m, logger)
	researchSvc := research.NewService(store, set.Deep, logger)
	server := api.NewServer(cfg, p, store, hub, researchSvc, m, logger)

	release = false
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lock:     lock,
		store:    store,
		hub:      hub,
		metrics:  m,
		pipeline: p,
		server:   server,
	}, nil
}

// Start launches the pipeline workers and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.pipeline.Start(ctx)
	if err := d.server.Start(ctx); err != nil {
		d.pipeline.Stop()
		return err
	}
	d.logger.Info("daemon started",
		logging.String("archive", d.cfg.ArchivePath()),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop shuts everything down in dependency order and releases the lock.
func (d *Daemon) Stop() {
	d.server.Stop()
	d.pipeline.Stop()
	d.hub.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("lock release failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}
