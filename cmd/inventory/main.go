package main

import (
	"context"
	"flag"
	"github.com/ariefcatur/foodstore-orders/internal/config"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/logx"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/postgres"
	"github.com/joho/godotenv"
	"os/signal"
	"syscall"
	"time"
)

// inventory prepares the daily inventory records. Without flags it runs
// every local midnight; with -date it prepares one day and exits.
func main() {
	date := flag.String("date", "", "prepare records for one day (yyyy-mm-dd) and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.LogFormat).WithField("service", cfg.ServiceName+"-inventory")
	for _, w := range cfg.Warnings {
		log.Warn("config: " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db")
	}
	defer db.Close()

	s := &inventory.Scheduler{
		Ledger:   &inventory.Ledger{Store: &inventory.PostgresStore{DB: db}, Log: log},
		Products: &menu.Repo{DB: db},
		Location: cfg.Location(),
		Log:      log,
	}

	if *date != "" {
		day, err := time.ParseInLocation("2006-01-02", *date, cfg.Location())
		if err != nil {
			log.WithError(err).Fatal("-date must be yyyy-mm-dd")
		}
		if _, err := s.CreateForDate(ctx, day); err != nil {
			log.WithError(err).Fatal("prepare inventory")
		}
		return
	}

	log.Info("daily inventory scheduler started")
	if err := s.Run(ctx); err != nil {
		log.WithError(err).Error("scheduler exit")
	}
	log.Info("scheduler stopped")
}
