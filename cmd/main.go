package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/okian/clubwatch/internal/adapters/brawlapi"
	"github.com/okian/clubwatch/internal/adapters/http/api"
	"github.com/okian/clubwatch/internal/adapters/http/swagger"
	"github.com/okian/clubwatch/internal/adapters/mq/queue"
	"github.com/okian/clubwatch/internal/adapters/mq/worker"
	"github.com/okian/clubwatch/internal/adapters/notify"
	"github.com/okian/clubwatch/internal/adapters/repository"
	app "github.com/okian/clubwatch/internal/app"
	"github.com/okian/clubwatch/internal/config"
	"github.com/okian/clubwatch/internal/domain/dedupe"
	"github.com/okian/clubwatch/internal/domain/milestone"
	"github.com/okian/clubwatch/internal/domain/season"
	"github.com/okian/clubwatch/pkg/logger"
	"github.com/okian/clubwatch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	drainTimeout              = 20 * time.Second
	webhookTimeout            = 10 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Get().Warn(context.Background(), "failed to read .env", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(context.Background(), "clubwatch exited with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, cfg.StateBackend, cfg.StatePath, cfg.StateDSN,
		repository.WithDocumentKey(cfg.ClubTag),
	)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "closing state store", logger.Error(err))
		}
	}()

	sinks, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	deliverer := worker.NewDeliverer(sinks,
		worker.WithMaxAttempts(cfg.DeliveryMaxAttempts),
		worker.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
	)
	pool := worker.NewPool(cfg.WorkerCount, q, deliverer, worker.WithRedelivery(q, cfg.Redeliveries))

	thresholds := cfg.MilestoneThresholds
	if len(thresholds) == 0 {
		thresholds = milestone.DefaultThresholds
	}
	client := brawlapi.NewClient(
		brawlapi.WithBaseURL(cfg.APIBaseURL),
		brawlapi.WithToken(cfg.APIToken),
		brawlapi.WithTimeout(cfg.APITimeout()),
		brawlapi.WithRateLimit(cfg.APIRatePerSec, cfg.APIBurst),
	)
	svc := app.New(cfg.ClubTag, client, store, app.NewQueueEmitter(q),
		app.WithRosterInterval(cfg.RosterInterval()),
		app.WithStatsInterval(cfg.StatsInterval()),
		app.WithEngine(milestone.NewEngine(
			milestone.WithDimensionCap(cfg.DimensionCap),
			milestone.WithThresholds(thresholds),
		)),
		app.WithDetector(season.NewDetector(season.WithDropThreshold(cfg.ResetDropThreshold))),
		app.WithDelivery(pool, q),
		app.WithDrainTimeout(drainTimeout),
		app.WithLogger(log.Named("service")),
	)

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}()

	log.Info(ctx, "watching club",
		logger.String("club", cfg.ClubTag),
		logger.String("backend", cfg.StateBackend),
		logger.Any("sinks", deliverer.Sinks()),
		logger.Int("workers", pool.Size()),
	)

	// Run blocks until the signal context is cancelled and delivery drained.
	runErr := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return runErr
}

// buildSinks returns the configured delivery sinks. The log sink is always on.
func buildSinks(cfg *config.Config) ([]worker.Sink, func(), error) {
	sinks := []worker.Sink{notify.NewLogSink(logger.Get().Named("events"))}
	closers := []func(){}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, &http.Client{Timeout: webhookTimeout}))
	}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, "clubwatch-"+cfg.ClubTag)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewNATSSink(nc, cfg.NATSSubjectPrefix))
		closers = append(closers, func() { drainNATS(nc) })
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func drainNATS(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		logger.Get().Warn(context.Background(), "draining nats connection", logger.Error(err))
	}
}

// newMux registers the ops routes.
func newMux(svc api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc).Register(mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// average pause across all collections
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
