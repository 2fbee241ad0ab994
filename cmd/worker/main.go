package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"feedrelay/internal/infra/cache"
	"feedrelay/internal/infra/channel"
	"feedrelay/internal/infra/preview"
	"feedrelay/internal/infra/source"
	"feedrelay/internal/infra/store"
	workerPkg "feedrelay/internal/infra/worker"
	"feedrelay/internal/observability/logging"
	"feedrelay/internal/usecase/deliver"
	pkgconfig "feedrelay/pkg/config"
	"feedrelay/pkg/ratelimit"
)

func main() {
	logger := logging.NewLogger()
	if pkgconfig.GetEnvString("LOG_FORMAT", "json") == "text" {
		logger = logging.NewTextLogger()
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister(prometheus.DefaultRegisterer)
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("cycle_timeout", workerConfig.CycleTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	subscriptionStore := initStore(logger)
	defer func() {
		if err := subscriptionStore.Close(); err != nil {
			logger.Error("failed to close subscription store", slog.Any("error", err))
		}
	}()

	service, responseCache := setupDeliveryService(logger, subscriptionStore)

	startMetricsServer(ctx, logger)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runCronWorker(ctx, logger, service, responseCache, workerConfig, workerMetrics, healthServer)
}

// initStore opens the SQLite subscription store at DB_PATH.
func initStore(logger *slog.Logger) *store.SQLite {
	dsn := pkgconfig.GetEnvString("DB_PATH", "feedrelay.db")
	s, err := store.Open(dsn)
	if err != nil {
		logger.Error("failed to open subscription store",
			slog.String("dsn", dsn),
			slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("subscription store opened", slog.String("dsn", dsn))
	return s
}

// setupDeliveryService wires the full pipeline: content source, delivery
// channel, response cache (sharing the store's database file for its
// durable tier), rate limiter, and the scheduler itself.
func setupDeliveryService(logger *slog.Logger, subscriptionStore *store.SQLite) (*deliver.Service, *cache.Cache) {
	limiter := ratelimit.New(
		ratelimit.DefaultConfig(),
		nil,
		ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer),
	)

	durableTier, err := cache.NewSQLiteTier(subscriptionStore.DB())
	if err != nil {
		logger.Error("failed to initialize durable cache tier", slog.Any("error", err))
		os.Exit(1)
	}
	responseCache := cache.New(
		cache.DefaultTTLConfig(),
		limiter,
		cache.DefaultBreakers(),
		durableTier,
		nil,
		cache.NewPrometheusMetrics(prometheus.DefaultRegisterer),
	)

	discordClient := channel.NewDiscordClient(channel.DiscordConfig{
		BotToken: requireEnv(logger, "DISCORD_BOT_TOKEN"),
		Timeout:  30 * time.Second,
	})

	contentSource := createContentSource(logger)

	pipelineConfig := loadPipelineConfig()
	fetcher := deliver.NewFetcher(contentSource, limiter, nil,
		pipelineConfig.FetchLimit, pipelineConfig.FetchCutoff)

	previewFetcher := &previewAdapter{fetcher: preview.NewFetcher(newHTTPClient(10 * time.Second))}

	service := deliver.NewService(
		pipelineConfig,
		subscriptionStore,
		fetcher,
		discordClient,
		previewFetcher,
		responseCache,
		limiter,
		deliver.NewPrometheusMetrics(prometheus.DefaultRegisterer),
		nil,
	)
	return service, responseCache
}

// createContentSource selects the feed adapter via SOURCE_TYPE:
// "scraper" scrapes the newest-items page, "algolia" queries the search
// API with server-side keyword filtering.
func createContentSource(logger *slog.Logger) deliver.ContentSource {
	sourceType := pkgconfig.GetEnvString("SOURCE_TYPE", "scraper")
	client := newHTTPClient(30 * time.Second)

	switch sourceType {
	case "scraper":
		logger.Info("using newest-page scraper source")
		return source.NewHNScraper(client, "")
	case "algolia":
		cutoff := pkgconfig.GetEnvDuration("FETCH_CUTOFF", 24*time.Hour)
		logger.Info("using search API source", slog.Duration("cutoff", cutoff))
		return source.NewAlgoliaSource(client, "", cutoff)
	default:
		logger.Error("invalid SOURCE_TYPE",
			slog.String("type", sourceType),
			slog.String("expected", "scraper or algolia"))
		os.Exit(1)
		return nil
	}
}

// loadPipelineConfig overlays environment values on the pipeline defaults.
func loadPipelineConfig() deliver.Config {
	cfg := deliver.DefaultConfig()
	cfg.FetchLimit = pkgconfig.GetEnvInt("FETCH_LIMIT", cfg.FetchLimit)
	cfg.FetchCutoff = pkgconfig.GetEnvDuration("FETCH_CUTOFF", cfg.FetchCutoff)
	cfg.PerGroupBudget = pkgconfig.GetEnvInt("PER_GROUP_BUDGET", cfg.PerGroupBudget)
	cfg.SubscriberBatchMax = pkgconfig.GetEnvInt("SUBSCRIBER_BATCH_MAX", cfg.SubscriberBatchMax)
	cfg.WaveSize = pkgconfig.GetEnvInt("WAVE_SIZE", cfg.WaveSize)
	cfg.WaveDelay = pkgconfig.GetEnvDuration("WAVE_DELAY", cfg.WaveDelay)
	cfg.MaxParallelDeliveries = pkgconfig.GetEnvInt("MAX_PARALLEL_DELIVERIES", cfg.MaxParallelDeliveries)
	cfg.EmptyKeywordsMatchAll = pkgconfig.GetEnvBool("EMPTY_KEYWORDS_MATCH_ALL", cfg.EmptyKeywordsMatchAll)
	cfg.DeliveryTimeout = pkgconfig.GetEnvDuration("DELIVERY_TIMEOUT", cfg.DeliveryTimeout)
	return cfg
}

func requireEnv(logger *slog.Logger, key string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Error("required environment variable is not set", slog.String("key", key))
		os.Exit(1)
	}
	return value
}

// newHTTPClient creates an HTTP client with timeouts and connection
// pooling. TLS 1.2+ is enforced.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// previewAdapter bridges the preview package's type to the pipeline's.
type previewAdapter struct {
	fetcher *preview.Fetcher
}

func (a *previewAdapter) Fetch(ctx context.Context, pageURL string) (deliver.LinkPreview, error) {
	p, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return deliver.LinkPreview{}, err
	}
	return deliver.LinkPreview{Description: p.Description, ImageURL: p.ImageURL}, nil
}

// runCronWorker schedules delivery cycles and cache cleanup, then blocks
// until a termination signal, allowing in-flight work the configured grace
// period.
func runCronWorker(
	ctx context.Context,
	logger *slog.Logger,
	service *deliver.Service,
	responseCache *cache.Cache,
	cfg *workerPkg.WorkerConfig,
	metrics *workerPkg.WorkerMetrics,
	healthServer *workerPkg.HealthServer,
) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if _, err := c.AddFunc(cfg.CronSchedule, func() {
		runDeliveryJob(ctx, logger, service, cfg, metrics)
	}); err != nil {
		logger.Error("failed to add delivery cron job", slog.Any("error", err))
		os.Exit(1)
	}

	cleanupSchedule := fmt.Sprintf("@every %s", cfg.CacheCleanupInterval)
	if _, err := c.AddFunc(cleanupSchedule, func() {
		responseCache.CleanupExpired()
	}); err != nil {
		logger.Error("failed to add cache cleanup cron job", slog.Any("error", err))
		os.Exit(1)
	}

	c.Start()
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	healthServer.SetReady(false)
	logger.Info("shutdown signal received, draining",
		slog.Duration("grace", cfg.ShutdownGrace))

	// Stop rearming the timer; wait for running jobs up to the grace
	// period.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("all jobs finished, exiting")
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("grace period elapsed with jobs still running, exiting")
	}
}

// runDeliveryJob executes one delivery cycle with a timeout and job-level
// metrics.
func runDeliveryJob(ctx context.Context, logger *slog.Logger, service *deliver.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	logger.Info("delivery job started")

	jobCtx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
	defer cancel()

	service.RunCycle(jobCtx)

	duration := time.Since(startTime)
	status := jobStatus(jobCtx.Err())
	metrics.RecordJobRun(status)
	if status == workerPkg.JobStatusSuccess {
		metrics.RecordLastSuccess()
	}
	metrics.RecordJobDuration(duration)

	logger.Info("delivery job finished", slog.Duration("duration", duration))
}

// jobStatus maps the job context's terminal error to a run status. A cycle
// cut short by timeout or shutdown cancellation did not complete its work
// and must not stamp the last-success timestamp.
func jobStatus(ctxErr error) string {
	if ctxErr != nil {
		return workerPkg.JobStatusFailure
	}
	return workerPkg.JobStatusSuccess
}
