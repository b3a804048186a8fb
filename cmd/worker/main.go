package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/ledger"
	"github.com/brightpath/email-tracking/internal/mailer"
	"github.com/brightpath/email-tracking/internal/pkg/logger"
)

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

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	logger.Info("connected to database")

	var transport mailer.Transport
	switch cfg.Mailer.Provider {
	case "sparkpost":
		transport = mailer.NewSparkPostTransport(cfg.Mailer.SparkPost)
	default:
		transport, err = mailer.NewSESTransport(cfg.Mailer.SES.AccessKey, cfg.Mailer.SES.SecretKey, cfg.Mailer.SES.Region)
		if err != nil {
			log.Fatalf("ses transport: %v", err)
		}
	}
	logger.Info("transport initialized", "provider", transport.Name())

	worker := mailer.NewWorker(mailer.NewQueue(db), ledger.NewStore(db), transport, cfg.Worker, cfg.Mailer)
	worker.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down send worker")
	worker.Stop()
}
