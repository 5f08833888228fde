// Package server assembles the catalog and its collaborators from
// configuration and manages their lifecycle.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/catalog"
	"github.com/castellan-io/castellan/pkg/config"
	"github.com/castellan-io/castellan/pkg/event"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/storage"
)

// Castellan owns the graph store, the storage provider, the event
// dispatcher and the catalog built on top of them.
//
// Lifecycle:
//  1. Creation: New() from a loaded configuration
//  2. Run(ctx) initializes the store and blocks until ctx is cancelled
//  3. Cancellation triggers ordered shutdown: event dispatcher first so
//     in-flight deliveries drain, then the graph store
type Castellan struct {
	store      graph.Store
	provider   *storage.Provider
	dispatcher *event.Dispatcher
	catalog    *catalog.Catalog

	shutdownTimeout time.Duration
}

// New builds a Castellan server from configuration. Every collaborator is
// constructed through the config factories; nothing is started yet.
func New(ctx context.Context, cfg *config.Config) (*Castellan, error) {
	store, err := config.CreateGraphStore(ctx, &cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}

	provider, err := config.CreateStorageProvider(ctx, &cfg.Storage)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("storage provider: %w", err)
	}

	dispatcher, err := config.CreateEventDispatcher(&cfg.Events)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("event dispatcher: %w", err)
	}

	return &Castellan{
		store:           store,
		provider:        provider,
		dispatcher:      dispatcher,
		catalog:         catalog.New(store, provider, dispatcher, cfg.Server.AdminKey),
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}, nil
}

// Catalog returns the catalog backed by this server's collaborators.
func (s *Castellan) Catalog() *catalog.Catalog {
	return s.catalog
}

// Run initializes the catalog and blocks until ctx is cancelled, then shuts
// everything down in order. Returns the context error on cancellation or the
// first shutdown error.
func (s *Castellan) Run(ctx context.Context) error {
	if err := s.catalog.Init(ctx); err != nil {
		s.shutdown()
		return fmt.Errorf("catalog init: %w", err)
	}

	logger.Info("castellan ready: admin=%q, storage=%v",
		s.catalog.AdminKey(), s.provider.Names())

	<-ctx.Done()
	logger.Info("shutdown signal received (reason: %v)", ctx.Err())

	if err := s.shutdown(); err != nil {
		return err
	}
	return ctx.Err()
}

// shutdown stops the collaborators in dependency order. The dispatcher goes
// first so queued events still find a live process; the store goes last.
func (s *Castellan) shutdown() error {
	done := make(chan struct{})
	go func() {
		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		logger.Warn("event dispatcher did not drain within %v", s.shutdownTimeout)
	}

	if err := s.store.Close(); err != nil {
		logger.Error("graph store close failed: %v", err)
		return err
	}

	logger.Info("castellan stopped gracefully")
	return nil
}
