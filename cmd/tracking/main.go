package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/brightpath/email-tracking/internal/api"
	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/ledger"
	"github.com/brightpath/email-tracking/internal/pkg/logger"
	"github.com/brightpath/email-tracking/internal/tokens"
	"github.com/brightpath/email-tracking/internal/tracking"
)

// The tracking binary serves only the pixel, click redirect, and
// unsubscribe endpoints. Inbox providers hammer these; keeping them in a
// separate process lets them scale without touching the management API.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactEnabled())

	port := os.Getenv("TRACKING_PORT")
	if port == "" {
		port = "8081"
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	signer, err := tracking.NewSigner(cfg.Tracking.SigningSecret)
	if err != nil {
		log.Fatalf("tracking signer: %v", err)
	}

	store := ledger.NewStore(db)
	gate := ledger.NewPreferenceGate(store, rdb, 5*time.Minute)
	handlers := api.NewHandlers(store, gate, signer, tokens.NewRedisStore(rdb))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      api.SetupTrackingRoutes(handlers),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
