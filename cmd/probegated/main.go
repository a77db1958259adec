package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probegate/probegate/internal/guard/common/clock"
	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/config"
	"github.com/probegate/probegate/internal/guard/gateways/control"
	"github.com/probegate/probegate/internal/guard/gateways/httpapi"
	"github.com/probegate/probegate/internal/guard/gateways/resolver"
	"github.com/probegate/probegate/internal/guard/repos/allowlist"
	"github.com/probegate/probegate/internal/guard/repos/allowlist/bloom"
	"github.com/probegate/probegate/internal/guard/repos/allowlist/bolt"
	"github.com/probegate/probegate/internal/guard/repos/allowlist/lru"
	"github.com/probegate/probegate/internal/guard/repos/kvstore"
	"github.com/probegate/probegate/internal/guard/repos/ledger"
	"github.com/probegate/probegate/internal/guard/services/engine"
	"github.com/probegate/probegate/internal/guard/services/lifecycle"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "probegated"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the guard daemon.
type Application struct {
	config  *config.AppConfig
	server  *httpapi.Server
	life    *lifecycle.Lifecycle
	closers []func() error
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":        version,
		"env":            cfg.Env,
		"log_level":      cfg.LogLevel,
		"listen_addr":    cfg.ListenAddr,
		"tracker_suffix": cfg.TrackerSuffix,
		"servers":        cfg.ResolverServers,
	}, "Starting probegate daemon")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "Probegate daemon stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	repos, err := buildRepositories(cfg, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	tracker, err := resolver.New(resolver.Options{
		Servers:       cfg.ResolverServers,
		TrackerSuffix: cfg.TrackerSuffix,
		Timeout:       time.Duration(cfg.ResolverTimeoutMS) * time.Millisecond,
		CacheSize:     cfg.CNAMECacheSize,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker resolver: %w", err)
	}

	eng := engine.New(engine.Options{
		Allowlist: repos.allowlist,
		Tracker:   tracker,
		Ledger:    repos.ledger,
		Logger:    logger,
	})

	// The HTTP surface is both the control plane and the request stream the
	// lifecycle attaches the engine to.
	server := httpapi.New(httpapi.Options{
		Addr:      cfg.ListenAddr,
		Engine:    eng,
		Ledger:    repos.ledger,
		Allowlist: repos.allowlist,
		Logger:    logger,
	})

	life := lifecycle.New(server, repos.kv, logger)
	dispatcher := control.New(cfg.UIOrigin, life, repos.kv, logger)
	server.SetDispatcher(dispatcher)

	return &Application{
		config:  cfg,
		server:  server,
		life:    life,
		closers: repos.closers,
	}, nil
}

// repositories holds all repository implementations.
type repositories struct {
	kv        kvstore.Store
	allowlist allowlist.Repository
	ledger    *ledger.Registry
	closers   []func() error
}

// buildRepositories creates and configures all repository implementations.
func buildRepositories(cfg *config.AppConfig, clk clock.Clock, logger log.Logger) (*repositories, error) {
	kv, err := kvstore.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	allowStore, err := bolt.New(cfg.AllowDBPath)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("failed to open allowlist store: %w", err)
	}

	allowCache, err := lru.New(cfg.AllowCacheSize)
	if err != nil {
		_ = kv.Close()
		_ = allowStore.Close()
		return nil, fmt.Errorf("failed to create allowlist cache: %w", err)
	}

	allowRepo, err := allowlist.NewRepository(allowStore, allowCache, bloom.NewFactory(), cfg.BloomFPRate, kv)
	if err != nil {
		_ = kv.Close()
		_ = allowStore.Close()
		return nil, fmt.Errorf("failed to build allowlist: %w", err)
	}

	log.Info(map[string]any{
		"db":         cfg.AllowDBPath,
		"cache_size": cfg.AllowCacheSize,
		"fp_rate":    cfg.BloomFPRate,
	}, "Allowlist repository configured")

	reg := ledger.NewRegistry(ledger.Options{KV: kv, Clock: clk, Logger: logger})

	return &repositories{
		kv:        kv,
		allowlist: allowRepo,
		ledger:    reg,
		closers:   []func() error{allowStore.Close, kv.Close},
	}, nil
}

// Run starts the daemon and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP surface: %w", err)
	}

	// Replay the persisted blocking_enabled flag; a failed attach leaves the
	// daemon serving allow-all until the UI toggles again.
	if err := app.life.Restore(); err != nil {
		log.Warn(map[string]any{"error": err}, "Failed to restore listener state")
	}

	log.Info(map[string]any{
		"address":   app.server.Address(),
		"listening": app.life.IsListening(),
	}, "Probegate daemon started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.server.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during HTTP shutdown")
	}

	done := make(chan struct{})
	go func() {
		for _, closeFn := range app.closers {
			if err := closeFn(); err != nil {
				log.Warn(map[string]any{"error": err}, "Error closing store")
			}
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
