// Command siemd is the SIEM data plane's single-process entrypoint: it
// wires the event sink (C4), batch scheduler (C6), streaming runner (C7)
// and UEBA modeler (C8) against a shared Postgres metadata store, a
// Postgres-wire-compatible events store, and Redis Streams, then serves
// /metrics until SIGINT/SIGTERM.
//
// Grounded on cmd/appserver/main.go's flag-override-then-config,
// open-db-then-migrate, signal-then-graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/darkermemo/sim6-sub001/internal/batchsched"
	"github.com/darkermemo/sim6-sub001/internal/cache"
	"github.com/darkermemo/sim6-sub001/internal/config"
	"github.com/darkermemo/sim6-sub001/internal/eventstore"
	eventspg "github.com/darkermemo/sim6-sub001/internal/eventstore/postgres"
	"github.com/darkermemo/sim6-sub001/internal/logging"
	"github.com/darkermemo/sim6-sub001/internal/metrics"
	"github.com/darkermemo/sim6-sub001/internal/normalize"
	"github.com/darkermemo/sim6-sub001/internal/ratelimit"
	"github.com/darkermemo/sim6-sub001/internal/sink"
	"github.com/darkermemo/sim6-sub001/internal/store"
	storepg "github.com/darkermemo/sim6-sub001/internal/store/postgres"
	"github.com/darkermemo/sim6-sub001/internal/streamrunner"
	"github.com/darkermemo/sim6-sub001/internal/ueba"
)

// service is anything with the Start/Stop shape every C-component shares.
type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml (overrides CONFIG_FILE)")
	dsnFlag := flag.String("dsn", "", "Postgres DSN (overrides config/env)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "siemd: load config:", err)
		os.Exit(1)
	}

	logging.InitDefault("siemd", cfg.Logging.Level, cfg.Logging.Format)
	log := logging.Default()

	dsn := *dsnFlag
	if dsn == "" {
		dsn = cfg.Database.DSN
	}
	if dsn == "" {
		log.Fatal("siemd: no database DSN configured (set database.dsn, DATABASE_DSN or -dsn)")
	}

	if cfg.Database.MigrateOnStart {
		if err := storepg.Migrate(dsn, cfg.Database.MigrationsPath); err != nil {
			log.WithError(err).Fatal("siemd: migrate")
		}
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		log.WithError(err).Fatal("siemd: open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	metaStore := storepg.New(db)
	var eventsStore eventstore.EventStore = eventspg.New(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Stream.Addr,
		Password: cfg.Stream.Password,
		DB:       cfg.Stream.DB,
	})
	defer redisClient.Close()

	m := metrics.New()
	stop := make(chan struct{})
	go m.RunReaper(stop, time.Minute, time.Hour)
	defer close(stop)

	tenants := cfg.Tenants()

	fieldNamePattern, err := regexp.Compile(cfg.Ingest.FieldNameRegex)
	if err != nil {
		log.WithError(err).Fatal("siemd: compile ingest.field_name_regex")
	}

	eventSink := sink.New(
		sink.Config{
			MaxBatchSize:    cfg.Ingest.BatchSize,
			MaxBatchBytes:   cfg.Ingest.BatchMaxBytes,
			WorkerCount:     cfg.Ingest.WorkerCount,
			MaxRetries:      cfg.Ingest.MaxRetries,
			Backpressure:    sink.PolicyBlock,
			DefaultTenantID: "default",
			Limits: normalize.Limits{
				MaxMessageLength: cfg.Ingest.MaxMessageLength,
				MaxFieldsCount:   cfg.Ingest.MaxFieldsCount,
				FieldNamePattern: fieldNamePattern,
			},
		},
		eventsStore,
		sink.NewRedisStreamProducer(redisClient, cfg.Stream.StreamKeyPrefix, cfg.Stream.MaxLen),
		sink.NewRingDLQ(10_000),
		ratelimit.NewTenantLimiters(ratelimit.Config{
			RequestsPerSecond: cfg.Ingest.RateLimitRPS,
			Burst:             cfg.Ingest.RateLimitBurst,
		}),
		m, log,
	)

	ruleCache := cache.New(cache.DefaultConfig())

	scheduler := batchsched.New(
		batchsched.Config{
			TickInterval: time.Duration(cfg.Rule.BatchPollInterval) * time.Second,
		},
		metaStore, metaStore, metaStore, eventsStore, nil, ruleCache, m, log,
	)

	runner := streamrunner.New(
		streamrunner.Config{
			KeyPrefix:    cfg.Stream.StreamKeyPrefix,
			GroupName:    cfg.Stream.ConsumerGroup,
			ConsumerName: cfg.Rule.StreamConsumerName,
			BlockTimeout: time.Duration(cfg.Rule.StreamBlockMillis) * time.Millisecond,
			ReadCount:    int64(cfg.Rule.StreamBatchSize),
			MinIdleTime:  time.Duration(cfg.Stream.ClaimMinIdle) * time.Millisecond,
			DedupTTL:     time.Duration(cfg.Rule.DedupTTLSeconds) * time.Second,
		},
		redisClient, metaStore, metaStore, streamrunner.StaticTenants(tenants), m, log,
	)

	modeler := ueba.New(
		ueba.Config{
			IntervalHours:         cfg.UEBA.RebuildIntervalHr,
			CalculationPeriodDays: cfg.UEBA.CalculationPeriodDays,
		},
		eventsStore, metaStore, ueba.StaticTenants(tenants), log,
	)

	services := []service{eventSink, scheduler, runner, modeler}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.WithError(err).Fatal("siemd: start service")
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: metrics.Handler(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("siemd: metrics server stopped")
		}
	}()

	log.Infof("siemd: ready, metrics on %s", httpServer.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("siemd: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	for _, svc := range services {
		if err := svc.Stop(shutdownCtx); err != nil {
			log.WithError(err).Error("siemd: stop service")
		}
	}
}

var (
	_ store.RuleStore      = (*storepg.Store)(nil)
	_ store.RuleStateStore = (*storepg.Store)(nil)
	_ store.AlertStore     = (*storepg.Store)(nil)
	_ store.BaselineStore  = (*storepg.Store)(nil)
)
