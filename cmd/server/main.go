package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/compliance/internal/activity"
	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/compliance"
	"github.com/matthewbaird/compliance/internal/config"
	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/eventbus"
	"github.com/matthewbaird/compliance/internal/handler"
	"github.com/matthewbaird/compliance/internal/metrics"
	"github.com/matthewbaird/compliance/internal/server"
	"github.com/matthewbaird/compliance/internal/store"
	"github.com/matthewbaird/compliance/internal/workorder"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	level, err := lc.ZapLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, dialect, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db, dialect, log); err != nil {
		return err
	}
	issues := store.NewSQLStore(db, dialect)
	activityStore := activity.NewSQLStore(db, dialect)

	catalogs, err := catalog.OpenStore(cfg.Catalog.Path, log, m)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	if cfg.Catalog.Watch {
		w, err := catalog.NewWatcher(catalogs, log)
		if err != nil {
			return fmt.Errorf("watching catalog: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watching catalog: %w", err)
		}
		defer w.Stop()
	}

	// The bus outlives ctx so events published during shutdown are still
	// delivered by Stop.
	bus := eventbus.New(cfg.Server.EventBuffer, log.Named("eventbus"), m)
	recorder := event.NewActivityRecorder(activityStore)
	recorder.SetPublisher(bus)

	var workOrders corrective.WorkOrderService
	if cfg.WorkOrder.URL != "" {
		workOrders = workorder.NewHTTPClient(cfg.WorkOrder.URL, &http.Client{Timeout: cfg.WorkOrder.Timeout})
		log.Info("using external work order service", zap.String("url", cfg.WorkOrder.URL))
	} else {
		workOrders = workorder.NewLocalService(bus)
		log.Info("using in-process work order service")
	}

	machine := corrective.NewMachine(issues, workOrders,
		corrective.WithRecorder(recorder),
		corrective.WithLogger(log.Named("corrective")),
		corrective.WithMetrics(m),
	)
	svc := compliance.New(issues, issues, catalogs, log.Named("compliance"), m)
	hub := handler.NewStreamHub(log.Named("stream"))

	completions := eventbus.NewCompletionConsumer(machine, log.Named("completion"))
	bus.Subscribe("log", eventbus.NewLogConsumer(log.Named("events")))
	bus.Subscribe("work-order-completion", completions)
	bus.Subscribe("stream", hub)
	bus.Start(context.Background())
	defer bus.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if len(cfg.Kafka.Brokers) > 0 {
		reader, err := workorder.NewCompletionReader(workorder.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.CompletionTopic,
			GroupID: cfg.Kafka.GroupID,
		}, completions, log.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka completion reader: %w", err)
		}
		defer reader.Close()
		g.Go(func() error { return reader.Run(gctx) })
	}

	routes := handler.Routes(handler.Deps{
		Service:  svc,
		Machine:  machine,
		Repo:     issues,
		Activity: activityStore,
		Stream:   hub,
		Gatherer: reg,
		Log:      log.Named("http"),
	})
	g.Go(func() error {
		return server.Run(gctx, server.Config{
			Port:            cfg.Server.Port,
			Handler:         routes,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			OnShutdown:      []func(){hub.CloseAll},
			Log:             log,
		})
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
