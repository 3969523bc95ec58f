package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openregistrar/auditcore/config"
	"github.com/openregistrar/auditcore/internal/adapters/reaper"
	"github.com/openregistrar/auditcore/internal/adapters/rulesengine"
	"github.com/openregistrar/auditcore/internal/adapters/worker"
	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data"
	"github.com/openregistrar/auditcore/internal/observability/auditlog"
	"github.com/openregistrar/auditcore/internal/observability/notify/pagerduty"
	"github.com/openregistrar/auditcore/internal/observability/notify/slack"
	"github.com/openregistrar/auditcore/internal/observability/statsd"
	"github.com/openregistrar/auditcore/internal/service"
	"github.com/openregistrar/auditcore/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue         *service.QueueService
	Results       *service.ResultService
	Exceptions    *service.ExceptionService
	WhatIf        *service.WhatIfService
	Memos         *core.MemoCacheService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
	Audit           *auditlog.Emitter
	AuditConfig     config.ObservabilityAuditConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB            *sql.DB
	Redis         redis.UniversalClient
	QueueRepo     *data.QueueRepo
	ResultRepo    *data.ResultRepo
	ExceptionRepo *data.ExceptionRepo
	WhatIfRepo    *data.WhatIfRepo
	MemoRepo      *data.MemoRepo
	CacheRepo     *data.RedisCacheRepo
}

// buildObservability configures metrics, notification, and audit adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "auditcore",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)
	auditEmitter := buildAuditEmitter(obsLogger, cfg.Audit)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
		Audit:           auditEmitter,
		AuditConfig:     cfg.Audit,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redis redis.UniversalClient) *serviceRepositories {
	repos := &serviceRepositories{
		DB:            db,
		Redis:         redis,
		QueueRepo:     data.NewQueueRepo(db, data.RepoConfig{}),
		ResultRepo:    data.NewResultRepo(db, data.ResultRepoConfig{}),
		ExceptionRepo: data.NewExceptionRepo(db, data.ExceptionRepoConfig{}),
		WhatIfRepo:    data.NewWhatIfRepo(db, data.WhatIfRepoConfig{}),
		MemoRepo:      data.NewMemoRepo(db),
	}
	if redis != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redis)
	}
	return repos
}

func newMemoCacheService(repos *serviceRepositories, cfg config.CacheConfig) *core.MemoCacheService {
	if repos.CacheRepo == nil {
		return nil
	}
	cacheCfg := core.DefaultMemoCacheConfig()
	if cfg.MemoTTL > 0 {
		cacheCfg.TTL = cfg.MemoTTL
	}
	return core.NewMemoCacheService(core.MemoCacheServiceOptions{
		Cache:  repos.CacheRepo,
		Memos:  repos.MemoRepo,
		Config: cacheCfg,
	})
}

func newQueueService(
	repos *serviceRepositories,
	observability ObservabilityContainer,
	lease time.Duration,
	logger *slog.Logger,
) *service.QueueService {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return service.MustNewQueueService(service.QueueServiceOptions{
		Repo:            repos.QueueRepo,
		DefaultLease:    lease,
		Logger:          logger,
		Metrics:         observability.MetricsSink,
		FailureNotifier: observability.FailureNotifier,
	})
}

// newPreviewEngine builds the rules engine client used for synchronous
// what-if previews. Returns nil when no engine is configured, which leaves
// preview endpoints disabled.
func newPreviewEngine(cfg config.RulesEngineConfig, logger *slog.Logger) core.RulesEngine {
	if cfg.BaseURL == "" {
		return nil
	}
	client, err := rulesengine.NewClient(rulesengine.ClientOptions{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise rules engine client", "error", err)
		}
		return nil
	}
	return client
}

// DomainServicesOptions groups inputs for domain service wiring.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) ServiceContainer {
	if opts == nil {
		return ServiceContainer{}
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	queueService := newQueueService(opts.Repos, opts.Observability, appCfg.Worker.JobLease, svcLogger)

	resultService, err := service.NewResultService(service.ResultServiceOptions{
		Repo:   opts.Repos.ResultRepo,
		Logger: svcLogger,
		Audit:  opts.Observability.Audit,
	})
	if err != nil {
		svcLogger.Error("failed to initialise result service", "error", err)
	}

	exceptionService, err := service.NewExceptionService(service.ExceptionServiceOptions{
		Repo:   opts.Repos.ExceptionRepo,
		Logger: svcLogger,
		Audit:  opts.Observability.Audit,
	})
	if err != nil {
		svcLogger.Error("failed to initialise exception service", "error", err)
	}

	whatIfService, err := service.NewWhatIfService(service.WhatIfServiceOptions{
		Repo:   opts.Repos.WhatIfRepo,
		Engine: newPreviewEngine(appCfg.RulesEngine, svcLogger),
		Logger: svcLogger,
		Audit:  opts.Observability.Audit,
	})
	if err != nil {
		svcLogger.Error("failed to initialise what-if service", "error", err)
	}

	return ServiceContainer{
		Queue:         queueService,
		Results:       resultService,
		Exceptions:    exceptionService,
		WhatIf:        whatIfService,
		Memos:         newMemoCacheService(opts.Repos, appCfg.Cache),
		Observability: opts.Observability,
	}
}

func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
	}
	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps.DB, deps.RedisClient)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			StudentURLPrefix: cfg.Slack.StudentURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildAuditEmitter configures the audit trail emitter. Events always reach
// the structured log; the HTTP sink is added when a collector URL is set.
func buildAuditEmitter(logger *slog.Logger, cfg config.ObservabilityAuditConfig) *auditlog.Emitter {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	var sinks []auditlog.Sink
	if cfg.IsEnabled() {
		sink, err := auditlog.NewHTTPSink(auditlog.HTTPSinkConfig{
			URL:         cfg.SinkURL,
			SummaryExpr: cfg.SummaryExpr,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			baseLogger.Error("failed to initialise HTTP audit sink", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	return auditlog.NewEmitter(auditlog.EmitterOptions{
		Logger: baseLogger,
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "audit worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			appCfg := deps.cfg.Config

			engine, err := rulesengine.NewClient(rulesengine.ClientOptions{
				BaseURL: appCfg.RulesEngine.BaseURL,
				Timeout: appCfg.RulesEngine.Timeout,
				Logger:  deps.logger,
			})
			if err != nil {
				return fmt.Errorf("create rules engine client: %w", err)
			}

			runner, err := worker.NewRunner(worker.RunnerOptions{
				DB:              deps.cfg.DB,
				RedisClient:     deps.cfg.RedisClient,
				Logger:          deps.logger,
				Lease:           appCfg.Worker.JobLease,
				Concurrency:     appCfg.Worker.Concurrency,
				WorkerID:        appCfg.Worker.WorkerID,
				JobTimeout:      appCfg.Worker.JobTimeout,
				Engine:          engine,
				Metrics:         deps.cfg.Services.Observability.MetricsSink,
				FailureNotifier: deps.cfg.Services.Observability.FailureNotifier,
			})
			if err != nil {
				return fmt.Errorf("create audit worker runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  reaperCfg,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("create reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:          serviceCtx,
		cancel:       cancel,
		errCh:        errCh,
		httpServer:   result.HTTPServer,
		queueService: cfg.Services.Queue,
		logger:       logger,
		backgrounds:  result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	queueService *service.QueueService
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:      shutdownCtx,
			Server:       cfg.httpServer,
			QueueService: cfg.queueService,
			Logger:       cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
