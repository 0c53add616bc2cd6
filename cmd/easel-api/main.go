package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"easel/internal/artifact"
	"easel/internal/config"
	server "easel/internal/http"
	"easel/internal/migrate"
	"easel/internal/notify"
	"easel/internal/pipeline"
	"easel/internal/services"
	"easel/internal/store"
	"easel/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|listener|all")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Cancelling this context stops every listener task together; an
	// in-flight pipeline run is abandoned at its next suspension point.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestTimeout := time.Duration(cfg.Workers.RequestTimeoutMs) * time.Millisecond
	pool := worker.NewPool(cfg.Workers.Endpoints, requestTimeout)
	logger.Info("worker pool ready", "workers", len(pool.Workers()))

	dispatcher := services.NewDispatchService(cfg, st, pool, logger)

	switch *role {
	case "api":
		// API-only: accept and dispatch jobs, leave event listening to
		// a dedicated listener process.
		s := server.NewServer(cfg, st, pool, dispatcher, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "listener":
		startListeners(rootCtx, cfg, st, pool, logger)
		<-rootCtx.Done()
	case "all":
		startListeners(rootCtx, cfg, st, pool, logger)
		s := server.NewServer(cfg, st, pool, dispatcher, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|listener|all)", *role)
	}
}

// startListeners launches one event stream listener per pool member and
// wires the completion pipeline behind them.
func startListeners(ctx context.Context, cfg *config.Config, st *store.Store, pool *worker.Pool, logger *slog.Logger) {
	blobs, err := artifact.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("build artifact store failed: %v", err)
	}
	fallback := artifact.NewFallbackWriter(cfg.Fallback.Dir)
	notifier := notify.New(30*time.Second, logger)
	pl := pipeline.New(st, blobs, fallback, notifier, logger)

	backoff := time.Duration(cfg.Listener.ReconnectDelayMs) * time.Millisecond
	for _, w := range pool.Workers() {
		w := w
		onComplete := func(ctx context.Context, workerTaskID string) {
			pl.Run(ctx, w.Client(), workerTaskID)
		}
		l := worker.NewListener(w, onComplete, backoff, logger)
		go l.Run(ctx)
	}
	logger.Info("event listeners started", "workers", len(pool.Workers()))
}
