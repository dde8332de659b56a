// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/forum-archiver/internal/clock/system"
	"github.com/JakeFAU/forum-archiver/internal/config"
	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/engine"
	collyfetcher "github.com/JakeFAU/forum-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/forum-archiver/internal/id/uuid"
	"github.com/JakeFAU/forum-archiver/internal/metrics"
	"github.com/JakeFAU/forum-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/forum-archiver/internal/publisher/memory"
	"github.com/JakeFAU/forum-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/forum-archiver/internal/storage"
)

// memoryRetention caps the in-memory publisher used when no project is set,
// since monitor runs publish indefinitely.
const memoryRetention = 1000

// Publisher is a crawler.Publisher that owns resources.
type Publisher interface {
	crawler.Publisher
	io.Closer
}

// App holds all the shared, long-lived services for one command invocation.
// It is built once at startup and closed when the command finishes.
type App struct {
	Logger    *zap.Logger
	Sink      crawler.Sink
	Publisher Publisher
	Engine    *engine.Engine
	Clock     crawler.Clock
}

// Options tweaks how services are built.
type Options struct {
	// ReadOnly opens the sink for inspection only and skips the fetch stack.
	ReadOnly bool
	// Registry defaults to storage.DefaultRegistry.
	Registry *storage.Registry
	// Fetcher replaces the colly fetcher.
	Fetcher crawler.Fetcher
	// Publisher replaces the publisher chosen from configuration.
	Publisher Publisher
}

// New creates and initializes the services described by cfg. It fails fast
// if the sink cannot be opened or initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	registry := opts.Registry
	if registry == nil {
		registry = storage.DefaultRegistry()
	}

	logger.Info("Initializing application services", zap.String("sink", cfg.Sink.Name), zap.Bool("read_only", opts.ReadOnly))
	sink, err := registry.Open(cfg.Sink.Name, storage.Options{
		OutputDir: cfg.Sink.Output,
		Database:  cfg.Sink.Database,
		Bucket:    cfg.Sink.Bucket,
		Prefix:    cfg.Sink.Prefix,
		Table:     cfg.Sink.Table,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	if err := sink.Initialize(ctx); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("initialize %s sink: %w", cfg.Sink.Name, err)
	}

	a := &App{Logger: logger, Sink: sink, Clock: system.New()}
	if opts.ReadOnly {
		return a, nil
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher, err = newPublisher(ctx, cfg.Publish, logger)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
	}
	a.Publisher = publisher

	fetcher := opts.Fetcher
	if fetcher == nil {
		throttle := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RequestsPerSecond,
			DefaultBurst: cfg.HTTP.Burst,
		})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTP.Timeout,
			Throttle:  throttle,
		})
	}

	var retry crawler.RetryPolicy
	if cfg.HTTP.MaxRetries > 0 {
		retry = crawler.NewExponentialRetryPolicy(cfg.RetryConfig())
	}

	a.Engine = engine.New(engine.Config{
		BaseURL:                 cfg.Source.BaseURL,
		ChallengeDomain:         cfg.Source.ChallengeDomain,
		ChallengeDomainFromHost: cfg.Source.ChallengeDomainFromHost,
		Concurrency:             cfg.Crawl.Concurrency,
		FailFast:                cfg.Crawl.FailFast,
		MaxChallengeAttempts:    cfg.Crawl.MaxChallengeAttempts,
		MaxPages:                cfg.Crawl.MaxPages,
		SinkName:                cfg.Sink.Name,
		Topic:                   cfg.Publish.Topic,
	}, fetcher, sink, publisher, a.Clock, retry, uuid.New(), logger)

	logger.Info("Application services initialized")
	return a, nil
}

func newPublisher(ctx context.Context, cfg config.PublishConfig, logger *zap.Logger) (Publisher, error) {
	switch {
	case cfg.Topic == "":
		logger.Debug("Post notifications disabled")
		return memory.New(), nil
	case cfg.ProjectID == "":
		logger.Info("Recording recent post notifications in memory",
			zap.String("topic", cfg.Topic), zap.Int("retained", memoryRetention))
		return memory.NewBounded(memoryRetention), nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: create pubsub client: %v", crawler.ErrConfiguration, err)
	}
	logger.Info("Publishing post notifications to Pub/Sub",
		zap.String("project", cfg.ProjectID), zap.String("topic", cfg.Topic))
	return pubsub.New(client), nil
}

// Close shuts down the sink and publisher, returning every failure.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("Error closing publisher", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.Sink != nil {
		if err := a.Sink.Close(); err != nil {
			a.Logger.Warn("Error closing sink", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
