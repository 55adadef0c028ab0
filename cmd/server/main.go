// Podkeep-Server is the subscription sync backend.
//
// It accepts batched changes from podcast clients, reconciles them
// against the server copy, and hands back the merged state.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/facebookgo/clock"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/podkeep/podkeep/internal/auth"
	"github.com/podkeep/podkeep/internal/migrations"
	"github.com/podkeep/podkeep/internal/reconcile"
	"github.com/podkeep/podkeep/internal/server"
	pksqlite "github.com/podkeep/podkeep/internal/sqlite"
	"github.com/podkeep/podkeep/logger"
)

type config struct {
	Database    string `env:"DATABASE, required"`
	TokenSecret string `env:"TOKEN_SECRET, required"`

	Port          int    `env:"PORT, default=4444"`
	CorsHeader    string `env:"CORS_HEADER, default=*"`
	SyncPerMinute int    `env:"SYNC_PER_MINUTE, default=30"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "database", cfg.Database)

	// Connect to the sqlite db
	dsn := fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000&_time_format=sqlite", cfg.Database)
	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	verifier, err := auth.NewVerifier(cfg.TokenSecret)
	if err != nil {
		return fmt.Errorf("error creating token verifier: %s", err)
	}

	repo := pksqlite.New(dbx)
	engine := reconcile.New(repo, clock.New())
	s := server.NewServer(server.ServerConfig{
		Port:          cfg.Port,
		CorsHeader:    cfg.CorsHeader,
		SyncPerMinute: cfg.SyncPerMinute,
	}, engine, repo, verifier, dbx)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
