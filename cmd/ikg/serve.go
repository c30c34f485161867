package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CRISalid-esr/crisalid-ikg/api"
	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/consumer"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/health"
	"github.com/CRISalid-esr/crisalid-ikg/identifier"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/natsclient"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/worker"
	"github.com/CRISalid-esr/crisalid-ikg/processor"
	"github.com/CRISalid-esr/crisalid-ikg/publisher"
	"github.com/CRISalid-esr/crisalid-ikg/reconcile"
	"github.com/CRISalid-esr/crisalid-ikg/search"
)

func newServeCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and every topic listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting CRISalid IKG",
				"version", Version,
				"build_time", BuildTime,
				"env", cfg.App.Env,
				"store", cfg.App.Store)
			return serve(ctx, cfg, logger)
		},
	}
}

// services are the reconciliation services shared by the API and the listeners
type services struct {
	people     *reconcile.PeopleService
	structures *reconcile.StructureService
	records    *reconcile.SourceRecordService
}

func newServices(deps reconcile.Dependencies) services {
	return services{
		people:     reconcile.NewPeopleService(deps),
		structures: reconcile.NewStructureService(deps),
		records:    reconcile.NewSourceRecordService(deps),
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()
	monitor := health.NewMonitor()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))
	monitor.Register("graph", store.Global().Ping)

	ids, err := identifier.NewService(cfg.Identifiers.People, cfg.Identifiers.Structures)
	if err != nil {
		return fmt.Errorf("identifier service: %w", err)
	}
	dispatcher := events.NewDispatcher(logger, metrics)
	svc := newServices(reconcile.Dependencies{
		Store:       store,
		Identifiers: ids,
		Events:      dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	nc, err := connectBroker(ctx, cfg, registry, metrics, logger)
	if err != nil {
		return err
	}
	defer nc.Close(context.WithoutCancel(ctx))
	monitor.Register("nats", nc.Check)

	pub := publisher.New(nc, cfg.Publisher, metrics, logger)
	pub.Register(publisher.TypeTask, publisher.SubtypePublicationRetrieval,
		publisher.NewPublicationRetrievalFactory(svc.people, cfg.Harvesters, cfg.Publisher.PublicationRetrievalSubject))
	pub.Subscribe(dispatcher)

	index, err := search.New(cfg.Search, svc.records, search.WithMetrics(metrics), search.WithLogger(logger))
	if err != nil {
		return err
	}
	if index.Enabled() {
		if err := index.Setup(ctx); err != nil {
			logger.Error("Search index setup failed, indexing will be attempted anyway", "error", err)
		}
		monitor.Register("search", index.Check)
	}
	index.Subscribe(dispatcher)

	manager, err := newListenerManager(cfg, svc, nc, registry, metrics, monitor, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.API, api.Dependencies{
		People:        svc.people,
		Structures:    svc.structures,
		SourceRecords: svc.records,
		Health:        monitor,
		Metrics:       registry,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return runQueue(gctx, "search", index, cfg.Consumption.WaitBeforeShutdown, logger)
	})
	g.Go(func() error {
		return runQueue(gctx, "publisher", pub, cfg.Consumption.WaitBeforeShutdown, logger)
	})

	logger.Info("CRISalid IKG started", "api", cfg.API.Addr+cfg.API.BasePath(), "topics", len(manager.Listeners()))
	err = g.Wait()
	logger.Info("CRISalid IKG stopped")
	return err
}

// queue is a background worker pool fed by signal handlers
type queue interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// runQueue runs q until ctx is done, then lets it drain. Workers get a
// context that outlives ctx so that the drain can complete.
func runQueue(ctx context.Context, name string, q queue, drain time.Duration, logger *slog.Logger) error {
	if err := q.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	if err := q.Stop(drain); err != nil {
		if errors.Is(err, worker.ErrStopTimeout) {
			logger.Warn("Queue not drained before shutdown", "queue", name)
			return nil
		}
		return err
	}
	return nil
}

func connectBroker(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry,
	metrics *metric.Metrics, logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithCoreMetrics(metrics),
		natsclient.WithMetrics(registry),
		natsclient.WithConnectRetryWait(cfg.NATS.ConnectRetryWait),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	nc, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	for _, stream := range cfg.Streams {
		if _, err := nc.EnsureStream(ctx, stream.Name, stream.Subjects); err != nil {
			_ = nc.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("declare stream %s: %w", stream.Name, err)
		}
	}
	return nc, nil
}

func newListenerManager(cfg *config.Config, svc services, nc *natsclient.Client, registry *metric.MetricsRegistry,
	metrics *metric.Metrics, monitor *health.Monitor, logger *slog.Logger,
) (*consumer.Manager, error) {
	topics := make([]string, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics = append(topics, t.Name)
	}

	topicRegistry := consumer.NewRegistry(topics...)
	if err := processor.Register(topicRegistry); err != nil {
		return nil, fmt.Errorf("register processors: %w", err)
	}

	return consumer.NewManager(cfg, topicRegistry, consumer.Dependencies{
		People:        svc.people,
		Structures:    svc.structures,
		SourceRecords: svc.records,
		Logger:        logger,
	}, consumer.Options{
		Subscriber: &consumer.JetStreamSubscriber{
			Client:   nc,
			Prefetch: cfg.Consumption.Prefetch,
			AckWait:  cfg.Consumption.AckTimeout,
		},
		DeadLetter:       nc,
		Metrics:          metrics,
		Registry:         registry,
		Health:           monitor,
		Logger:           logger,
		ConnectRetryWait: cfg.NATS.ConnectRetryWait,
	})
}
