package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/config"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/httpx"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	kafkax "github.com/ariefcatur/foodstore-orders/internal/kafka"
	"github.com/ariefcatur/foodstore-orders/internal/logx"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/ariefcatur/foodstore-orders/internal/payments"
	"github.com/ariefcatur/foodstore-orders/internal/postgres"
	"github.com/ariefcatur/foodstore-orders/internal/promotion"
	"github.com/ariefcatur/foodstore-orders/internal/redisx"
	"github.com/ariefcatur/foodstore-orders/internal/sse"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.LogFormat).WithField("service", cfg.ServiceName)
	for _, w := range cfg.Warnings {
		log.Warn("config: " + w)
	}
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	extractor := payments.PatternExtractor{}
	if cfg.PaymentOrderPattern != "" {
		re, err := regexp.Compile(cfg.PaymentOrderPattern)
		if err != nil {
			log.WithError(err).Fatal("PAYMENT_ORDER_PATTERN")
		}
		extractor.Pattern = re
	}

	// Push streams
	hub := sse.NewHub(sse.HubConfig{
		Buffer:        cfg.SubscriberBuffer,
		OrderIdle:     cfg.OrderStreamIdle,
		InventoryIdle: cfg.InventoryStreamIdle,
		PaymentIdle:   cfg.PaymentStreamIdle,
	}, log.WithField("component", "sse"))

	// Kafka
	var prod *kafkax.Producer
	if cfg.KafkaMirror || cfg.WebhookMode == config.WebhookQueue {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.WithField("component", "kafka"))
		prod.Start()
	}
	var bus events.Publisher = hub
	var relay *kafkax.Relay
	if cfg.KafkaMirror {
		relay = &kafkax.Relay{Sink: prod, Local: hub, Service: cfg.ServiceName, Log: log.WithField("component", "relay")}
		if cfg.EventFanout == config.FanoutKafka {
			bus = relay
		} else {
			bus = events.Fanout{hub, relay}
		}
	}

	// Domain
	ledger := &inventory.Ledger{
		Store:      &inventory.PostgresStore{DB: db},
		MaxRetries: cfg.ReserveMaxRetries,
		Log:        log.WithField("component", "inventory"),
	}
	if relay != nil && cfg.EventFanout == config.FanoutKafka {
		// writes from other replicas only reach this one through the relay
		relay.Local = events.Fanout{
			events.PublisherFunc(func(_ context.Context, ev events.Event) {
				if ev.Stream == events.StreamInventory {
					ledger.Invalidate()
				}
			}),
			hub,
		}
	}
	products := &menu.Repo{DB: db}
	scheduler := &inventory.Scheduler{Ledger: ledger, Products: products, Location: loc, Log: log.WithField("component", "scheduler")}
	orderRepo := &orders.Repo{DB: db}
	sessions := &orders.SessionRepo{DB: db}
	status := &orders.StatusService{
		Orders: orderRepo,
		Events: bus,
		Cache:  &redisx.StatusCache{RDB: rdb},
		Log:    log.WithField("component", "orders"),
	}
	pipeline := &orders.Pipeline{
		Ledger:     ledger,
		Products:   products,
		Sessions:   sessions,
		Promotions: &promotion.Service{DB: db, Log: log.WithField("component", "promotion")},
		Orders:     orderRepo,
		Events:     bus,
		Log:        log.WithField("component", "orders"),
		Location:   loc,
	}
	reconciler := &payments.Reconciler{
		Payments:  &payments.Repo{DB: db},
		Orders:    orderRepo,
		Extractor: extractor,
		Dedup:     &redisx.Dedup{RDB: rdb, Service: "payments"},
		Events:    bus,
		Status:    status,
		Tolerance: cfg.PaymentAmountTolerance,
		Location:  loc,
		Log:       log.WithField("component", "payments"),
	}

	// HTTP
	paymentsHandler := &httpx.PaymentsHandler{Reconciler: reconciler, Log: log}
	if cfg.WebhookMode == config.WebhookQueue {
		paymentsHandler.Queue = &kafkax.WebhookQueue{Producer: prod}
	}
	router := httpx.NewRouter(log, 15*time.Second,
		[]httpx.Routes{
			&httpx.OrdersHandler{Pipeline: pipeline, Orders: orderRepo, Status: status, Sessions: sessions, Log: log},
			&httpx.InventoryHandler{Ledger: ledger, Job: scheduler, Events: bus, Location: loc, Log: log},
			paymentsHandler,
		},
		[]httpx.Routes{
			&httpx.StreamsHandler{Hub: hub, Inventory: ledger, Location: loc, WriteTimeout: cfg.StreamWriteTimeout, Log: log},
		},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx, cfg.HeartbeatInterval)
		return nil
	})
	if cfg.RunScheduler {
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	if cfg.EventFanout == config.FanoutKafka {
		// every replica reads every event, so each gets its own group
		cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.ServiceName + "-relay-" + uuid.NewString()[:8],
			Topics:      kafkax.Topics(),
			Workers:     1,
			StartLatest: true,
		}, log)
		g.Go(func() error { return cons.Start(gctx, relay.Handle) })
	}
	if cfg.WebhookMode == config.WebhookQueue {
		cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ServiceName + "-webhooks",
			Topics:  []string{events.TopicPaymentWebhooks},
			Workers: cfg.WebhookWorkers,
			Retries: 3,
		}, log)
		g.Go(func() error { return cons.Start(gctx, kafkax.WebhookHandler(reconciler, log.WithField("component", "webhooks"))) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		hub.CloseAll() // lets open streams return before Shutdown waits on them
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	werr := g.Wait()
	if werr != nil {
		log.WithError(werr).Error("stopped with error")
	}
	if prod != nil {
		prod.Close() // flush queued events
		prod.WaitClosed()
	}
	log.Info("bye")
	if werr != nil {
		os.Exit(1)
	}
}
