// Package app assembles the queue, job manager, worker pool and sweeps that
// both the daemon and the command line run.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/label-checker/internal/async"
	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/export"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
	"github.com/joseph-ayodele/label-checker/internal/pipeline"
	"github.com/joseph-ayodele/label-checker/internal/preprocess"
	"github.com/joseph-ayodele/label-checker/internal/repository"
	"github.com/joseph-ayodele/label-checker/internal/server"
	"github.com/joseph-ayodele/label-checker/internal/vision"
	"github.com/joseph-ayodele/label-checker/internal/vision/anthropic"
)

// uploadSlack covers multipart framing on top of the job byte cap.
const uploadSlack = 1 << 20

// App owns every long-lived component of a running checker.
type App struct {
	Config  *common.Config
	Logger  *slog.Logger
	Queue   *async.Queue
	Manager *jobs.Manager
	Pool    *async.Pool
	Sweeper *jobs.Sweeper
	Reports *export.Service

	db     *repository.DB
	cancel context.CancelFunc
}

type options struct {
	extractor  vision.Extractor
	normalizer pipeline.Normalizer
}

type Option func(*options)

// WithExtractor replaces the Anthropic client, e.g. with a stub in tests.
func WithExtractor(e vision.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithNormalizer replaces the default image normalizer.
func WithNormalizer(n pipeline.Normalizer) Option {
	return func(o *options) { o.normalizer = n }
}

// New validates cfg and builds the components. Nothing runs until Start.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	extractor := o.extractor
	if extractor == nil {
		client := anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.Vision.APIKey,
			BaseURL:   cfg.Vision.BaseURL,
			Model:     cfg.Vision.Model,
			MaxTokens: cfg.Vision.MaxTokens,
			Timeout:   cfg.Vision.Timeout,
		}, logger)
		if !client.HasAPIKey() {
			return nil, common.InvalidArgument("ANTHROPIC_API_KEY is required")
		}
		extractor = vision.WithRetry(client, vision.DefaultRetryPolicy(cfg.Vision.MaxAttempts), logger)
	}
	normalizer := o.normalizer
	if normalizer == nil {
		normalizer = preprocess.NewNormalizer()
	}

	a := &App{Config: cfg, Logger: logger}

	var archive pipeline.Archiver
	if cfg.Archive.Driver != "" {
		db, err := repository.Open(ctx, repository.Config{
			Driver:      cfg.Archive.Driver,
			DSN:         cfg.Archive.DSN,
			MaxConns:    cfg.Archive.MaxConns,
			DialTimeout: cfg.Archive.DialTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := db.HealthCheck(ctx, cfg.Archive.DialTimeout, logger); err != nil {
			db.Close(logger)
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close(logger)
			return nil, err
		}
		a.db = db
		archive = repository.NewItemResultRepository(db, logger)
	}

	a.Queue = async.NewQueue(cfg.Workers.QueueSize, logger)
	a.Manager = jobs.NewManager(cfg.Limits, cfg.Storage.ScratchDir, a.Queue, logger)
	proc := pipeline.NewProcessor(logger, a.Manager, normalizer, extractor, int64(cfg.Workers.ExtractionConcurrency), archive)
	a.Pool = async.NewPool(a.Queue, proc, logger, async.WithWorkers(cfg.Workers.PoolSize))
	a.Sweeper = jobs.NewSweeper(a.Manager,
		cfg.Timers.WatchdogInterval, cfg.Timers.WatchdogTimeout,
		cfg.Timers.ReaperInterval, cfg.Timers.JobTTL, logger)
	a.Reports = export.NewService(logger)
	return a, nil
}

// Start launches the workers and the periodic sweeps.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.Pool.Start(ctx)
	a.Sweeper.Start(ctx)
	a.Logger.Info("app.started",
		"workers", a.Config.Workers.PoolSize,
		"queue_size", a.Queue.Cap(),
		"extraction_concurrency", a.Config.Workers.ExtractionConcurrency,
		"archive", a.db != nil)
}

// Handler is the HTTP surface over the job manager.
func (a *App) Handler() http.Handler {
	maxUpload := a.Config.Limits.MaxJobBytes + uploadSlack
	return server.NewServer(a.Manager, a.Reports, a.Config.Timers.Heartbeat, maxUpload, a.Logger).Routes()
}

// Shutdown stops the workers and sweeps, evicts every job and closes the
// archive. Queued items are abandoned.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.Pool.Shutdown(ctx)
	a.Sweeper.Wait()
	a.Manager.Close()
	if a.db != nil {
		a.db.Close(a.Logger)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
