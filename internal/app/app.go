// Package app initializes and holds the long-lived services of a process,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/clock/system"
	"github.com/JakeFAU/arewethereyet/internal/config"
	"github.com/JakeFAU/arewethereyet/internal/id/uuid"
	"github.com/JakeFAU/arewethereyet/internal/metrics"
	"github.com/JakeFAU/arewethereyet/internal/policy/ratelimit"
	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/arewethereyet/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/arewethereyet/internal/publisher/pubsub"
	"github.com/JakeFAU/arewethereyet/internal/storage/gcs"
	"github.com/JakeFAU/arewethereyet/internal/storage/local"
	"github.com/JakeFAU/arewethereyet/internal/storage/memory"
	"github.com/JakeFAU/arewethereyet/internal/storage/postgres"
	"github.com/JakeFAU/arewethereyet/internal/storage/sqlite"
	"github.com/JakeFAU/arewethereyet/internal/store"
	"github.com/JakeFAU/arewethereyet/internal/telemetry"
	"github.com/JakeFAU/arewethereyet/internal/transfer"
)

const httpSourceTimeout = 30 * time.Minute

// App holds the services shared by every command: the event hub and its
// sinks, the run repository, the live run registry and telemetry.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	hub       *progress.Hub
	runs      *progress.Registry
	repo      store.ProgressRepository
	publisher sinks.Publisher

	gcsClient *storage.Client
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customizes New.
type Option func(*App)

// WithRegisterer registers the Prometheus collectors on reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registerer = reg
	}
}

// WithPublisher overrides the milestone publisher selected from config.
func WithPublisher(pub sinks.Publisher) Option {
	return func(a *App) {
		a.publisher = pub
	}
}

// New initializes every service described by cfg. It fails fast: services
// started before the failure are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		registerer: prometheus.DefaultRegisterer,
		runs:       progress.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.init(ctx); err != nil {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	a.logger.Info("initializing application services")

	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.addCloser("telemetry", shutdown)

	if err := a.initStore(ctx); err != nil {
		return err
	}

	var hubSinks []progress.Sink
	if a.cfg.Sinks.Log {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	if a.cfg.Sinks.Prometheus {
		promSink, err := sinks.NewPrometheusSink(a.registerer)
		if err != nil {
			return fmt.Errorf("init prometheus sink: %w", err)
		}
		hubSinks = append(hubSinks, promSink)
	}
	hubSinks = append(hubSinks, sinks.NewStoreSink(a.repo, a.logger.Named("store")))
	if a.cfg.Sinks.Milestones.Enabled {
		if err := a.initPublisher(ctx); err != nil {
			return err
		}
		hubSinks = append(hubSinks, sinks.NewMilestoneSink(
			a.publisher,
			a.cfg.PubSub.TopicName,
			a.cfg.Sinks.Milestones.Thresholds,
			a.logger.Named("milestones"),
		))
	}

	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Hub.BufferSize,
		MaxBatchEvents: a.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Hub.MaxBatchWait,
		SinkTimeout:    a.cfg.Hub.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("hub"),
	}, hubSinks...)
	a.addCloser("hub", a.hub.Close)

	hub := a.hub
	if err := metrics.RegisterHub(a.registerer, func() (int64, int64, int64) {
		s := hub.Stats()
		return s.Accepted, s.Dropped, s.Flushes
	}); err != nil {
		a.logger.Warn("hub metrics not registered", zap.Error(err))
	}

	a.logger.Info("application services initialized",
		zap.String("store", a.cfg.Sinks.Store.Kind),
		zap.Int("sinks", len(hubSinks)))
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	storeCfg := a.cfg.Sinks.Store
	switch storeCfg.Kind {
	case config.StorePostgres:
		a.logger.Info("connecting to postgres")
		pg, err := postgres.NewProgressStore(ctx, postgres.Config{
			DSN:             storeCfg.DB.DSN,
			MaxConns:        storeCfg.DB.MaxConns,
			MinConns:        storeCfg.DB.MinConns,
			MaxConnLifetime: storeCfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.addCloser("postgres", func(context.Context) error {
			pg.Close()
			return nil
		})
		if storeCfg.DB.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres store: %w", err)
			}
		}
		a.repo = pg
	case config.StoreSQLite:
		a.logger.Info("opening sqlite store", zap.String("path", storeCfg.SQLite.Path))
		lite, err := sqlite.Open(ctx, storeCfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.addCloser("sqlite", func(context.Context) error { return lite.Close() })
		a.repo = lite
	case config.StoreMemory, "":
		a.repo = memory.NewProgressStore()
	default:
		return fmt.Errorf("unknown store kind: %s", storeCfg.Kind)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil {
		return nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("milestones kept in memory; pubsub.project_id is not set")
		a.publisher = memorypublisher.New()
		return nil
	}
	a.logger.Info("connecting to pubsub",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.addCloser("pubsub client", func(context.Context) error { return client.Close() })
	pub := pubsubpublisher.New(client)
	a.addCloser("pubsub publisher", func(context.Context) error {
		pub.Close()
		return nil
	})
	a.publisher = pub
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Hub returns the event hub every run reports to.
func (a *App) Hub() *progress.Hub {
	return a.hub
}

// Runs returns the registry of runs in flight.
func (a *App) Runs() *progress.Registry {
	return a.runs
}

// Repository returns the run repository backing the store sink.
func (a *App) Repository() store.ProgressRepository {
	return a.repo
}

// TransferEngine builds an engine for the destination of tcfg. Sources are
// routed by URI scheme; gs:// sources and the gcs destination share one client.
func (a *App) TransferEngine(ctx context.Context, tcfg config.TransferConfig) (*transfer.Engine, error) {
	httpSrc := transfer.HTTPSource{Client: &http.Client{Timeout: httpSourceTimeout}}
	sources := map[string]transfer.Source{
		"file":  transfer.FileSource{},
		"http":  httpSrc,
		"https": httpSrc,
	}
	if needsGCS(tcfg) {
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		sources["gs"] = transfer.NewGCSSource(client)
	}

	var dest transfer.Destination
	switch tcfg.Destination.Kind {
	case config.DestinationGCS:
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		bucket, err := gcs.New(client, gcs.Config{
			Bucket: tcfg.Destination.Bucket,
			Prefix: tcfg.Destination.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs destination: %w", err)
		}
		dest = bucket
	case config.DestinationMemory:
		dest = memory.NewBlobStore()
	default:
		dir, err := local.New(local.Config{BaseDir: tcfg.Destination.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local destination: %w", err)
		}
		dest = dir
	}

	var limiter transfer.Limiter
	if tcfg.RatePerHost > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: tcfg.RatePerHost, Burst: tcfg.Burst})
	}

	return transfer.NewEngine(transfer.NewRouter(sources), dest, transfer.Options{
		Concurrency:  tcfg.Concurrency,
		WeightBySize: tcfg.WeightBySize,
		Emitter:      a.hub,
		Clock:        system.New(),
		IDs:          uuid.New(),
		Registry:     a.runs,
		Limiter:      limiter,
	}, a.logger.Named("transfer")), nil
}

func needsGCS(tcfg config.TransferConfig) bool {
	if tcfg.Destination.Kind == config.DestinationGCS {
		return true
	}
	for _, it := range tcfg.Items {
		if strings.HasPrefix(it.Source, "gs://") {
			return true
		}
	}
	return false
}

func (a *App) storageClient(ctx context.Context) (*storage.Client, error) {
	if a.gcsClient != nil {
		return a.gcsClient, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	a.gcsClient = client
	a.addCloser("storage client", func(context.Context) error { return client.Close() })
	return client, nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close shuts services down in reverse start order, so the hub flushes its
// sinks before the repository and publishers they write to go away.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
