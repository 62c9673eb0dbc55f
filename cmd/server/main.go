package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/storecheck/internal/config"
	"github.com/liamcoop/storecheck/internal/logger"
	"github.com/liamcoop/storecheck/purchase"
	"github.com/liamcoop/storecheck/rules"
	"github.com/liamcoop/storecheck/unlock"
)

// deps holds everything the server needs plus the resources to release on exit
type deps struct {
	db      *sql.DB
	options Options
	closers []io.Closer
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.Warn("failed to close resource", "error", err)
		}
	}
}

func openUnlockStore(ctx context.Context, cfg *config.Config, secrets *config.Secrets, db *sql.DB) (unlock.FlagStore, io.Closer, error) {
	key := cfg.Unlock.Key
	switch cfg.Unlock.Backend {
	case config.BackendMemory:
		return unlock.NewMemoryStore(), nil, nil
	case config.BackendSQLite:
		store, err := unlock.NewSQLiteStore(cfg.Unlock.SQLitePath, key)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendPostgres:
		return unlock.NewPostgresStore(db, key), nil, nil
	case config.BackendRedis:
		store, err := unlock.NewRedisStore(ctx, unlock.RedisOptions{
			Address:  cfg.Unlock.RedisAddr,
			Password: secrets.RedisPassword,
			DB:       cfg.Unlock.RedisDB,
		}, key)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown unlock backend %q", cfg.Unlock.Backend)
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, secrets *config.Secrets) (*deps, error) {
	d := &deps{}

	if cfg.NeedsDatabase() {
		db, err := sql.Open("postgres", secrets.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		d.closers = append(d.closers, db)
		if err := db.PingContext(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		d.db = db
		d.options.DB = db
	}

	flags, closer, err := openUnlockStore(ctx, cfg, secrets, d.db)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open unlock store: %w", err)
	}
	if closer != nil {
		d.closers = append(d.closers, closer)
	}
	state := unlock.Load(ctx, flags)

	var store rules.DefinitionStore = rules.NewInMemoryDefinitionStore()
	if cfg.Rules.Store == config.BackendPostgres {
		store = rules.NewPostgresDefinitionStore(d.db)
	}
	cache := rules.NewInMemoryDefinitionCache(rules.CacheConfig{
		TTL: time.Duration(cfg.Rules.CacheTTL) * time.Second,
	})

	engine, err := rules.NewEngineWithCache(store, state, cache)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	if cfg.Rules.File != "" {
		defs, err := rules.LoadDefinitions(cfg.Rules.File)
		if err != nil {
			d.Close()
			return nil, err
		}
		added, err := engine.Seed(defs)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to seed rule definitions: %w", err)
		}
		logger.Info("seeded rule definitions", "file", cfg.Rules.File, "added", added, "total", len(defs))
	}

	var verifier purchase.Verifier
	if secrets.HasPaddle() {
		pv, err := purchase.NewPaddleVerifier(purchase.PaddleConfig{
			BaseURL:    cfg.Purchase.BaseURL,
			APIKey:     secrets.PaddleAPIKey,
			Timeout:    time.Duration(cfg.Purchase.Timeout) * time.Second,
			MaxRetries: uint64(cfg.Purchase.MaxRetries),
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		verifier = pv
		logger.Info("purchase verification enabled", "paddleApiKey", secrets.MaskPaddleAPIKey())
	} else {
		logger.Warn("PADDLE_API_KEY not set; purchase restore is disabled")
	}

	completer := purchase.NewCompleter(state, verifier)
	switch {
	case !cfg.Purchase.VerifyCheckout:
		completer.TrustCheckoutEvents()
		logger.Warn("verify_checkout is off; checkout events unlock without verification")
	case verifier == nil:
		logger.Warn("checkout events will be refused until PADDLE_API_KEY is set")
	}
	if secrets.AdminToken == "" {
		logger.Info("STORECHECK_ADMIN_TOKEN not set; unlock reset over HTTP is disabled")
	}

	d.options.Engine = engine
	d.options.State = state
	d.options.Completer = completer
	d.options.Policy = cfg.ReferencePolicy()
	d.options.RateLimit = cfg.Purchase.RateLimit
	d.options.RateBurst = cfg.Purchase.RateBurst
	d.options.TrustProxy = cfg.Server.TrustProxy
	d.options.AdminToken = secrets.AdminToken
	return d, nil
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	if err := secrets.Validate(cfg); err != nil {
		return err
	}

	d, err := buildDeps(ctx, cfg, secrets)
	if err != nil {
		return err
	}
	defer d.Close()

	server := NewServer(d.options)
	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			"port", cfg.Server.Port,
			"unlockBackend", cfg.Unlock.Backend,
			"rulesStore", cfg.Rules.Store,
			"unlocked", d.options.State.Unlocked())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if server.limiter != nil {
		g.Go(func() error {
			server.limiter.run(gctx)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, *configPath)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := logger.Shutdown(shutdownCtx); serr != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", serr)
	}

	if err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
