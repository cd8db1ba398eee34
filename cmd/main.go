package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxscout/internal/adapters/clickhouse"
	"boxscout/internal/adapters/config"
	"boxscout/internal/adapters/errors/noop"
	"boxscout/internal/adapters/errors/sentry"
	"boxscout/internal/adapters/kafka"
	"boxscout/internal/adapters/massive"
	"boxscout/internal/adapters/postgres"
	"boxscout/internal/adapters/redis"
	"boxscout/internal/adapters/telegram"
	"boxscout/internal/domain/trace"
	"boxscout/internal/metrics"
	chrepo "boxscout/internal/repository/clickhouse"
	pgrepo "boxscout/internal/repository/postgres"
	"boxscout/internal/services/alerts"
	"boxscout/internal/services/grading"
	optselect "boxscout/internal/services/options"
	"boxscout/internal/services/strategy"
	"boxscout/internal/workers"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()
	metricsSrv := startMetricsServer(cfg, log)

	tz, err := time.LoadLocation(cfg.Strategy.Timezone)
	if err != nil {
		log.Fatalf("Bad timezone %q: %v", cfg.Strategy.Timezone, err)
	}

	// Databases
	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	var archive trace.Archive
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer ch.Close()
		archive = chrepo.NewTraceArchive(ch.Conn())
	}

	// Outbound channels
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close()
	}
	var alertEvents alerts.Events
	var scanEvents workers.Events
	var gradeEvents grading.Events
	if producer != nil {
		alertEvents = producer
		scanEvents = producer
		gradeEvents = producer
	}

	var notifier alerts.Notifier
	if cfg.Telegram.Enabled {
		tg, err := telegram.NewNotifier(cfg.Telegram)
		if err != nil {
			log.Fatalf("Failed to create Telegram notifier: %v", err)
		}
		notifier = tg
	} else {
		log.Info("Telegram disabled, alerts go to the log only")
	}

	// Market data provider
	provider, err := massive.NewClient(cfg.Provider)
	if err != nil {
		log.Fatalf("Failed to create market data client: %v", err)
	}

	// Repositories
	alertRepo := pgrepo.NewAlertRepository(pg.DB())
	runRepo := pgrepo.NewRunRepository(pg.DB())
	gradeRepo := pgrepo.NewGradeRepository(pg.DB())

	// Services
	strat, err := strategy.New(strategyConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to build strategy: %v", err)
	}
	selector, err := optselect.NewSelector(optionsConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to build option selector: %v", err)
	}
	alertSvc, err := alerts.NewService(alerts.Config{
		Timezone:      cfg.Strategy.Timezone,
		MinConfidence: cfg.Scanner.MinConfidenceToAlert,
		Cooldown:      cfg.Scanner.AlertCooldown,
	}, alertRepo, notifier, alertEvents, redisClient)
	if err != nil {
		log.Fatalf("Failed to build alert service: %v", err)
	}
	gradingSvc := grading.NewService(alertRepo, gradeRepo, provider, gradeEvents)

	// Workers
	scheduler := workers.NewScheduler()
	scanWorker := workers.NewScanWorker(
		cfg.Scanner, tz, provider, strat, selector, alertSvc, runRepo, archive, scanEvents,
	)
	if err := scheduler.RegisterWorker(scanWorker); err != nil {
		log.Fatalf("Failed to register scan worker: %v", err)
	}
	if err := scheduler.RegisterWorker(workers.NewGradeWorker(cfg.Grading, gradingSvc)); err != nil {
		log.Fatalf("Failed to register grade worker: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Info("System initialized successfully")

	waitForShutdown(scheduler, metricsSrv, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startMetricsServer exposes /metrics, or returns nil when disabled
func startMetricsServer(cfg *config.Config, log *logger.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	go func() {
		log.Infof("Metrics server listening on %s", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
	return srv
}

func strategyConfig(cfg *config.Config) strategy.Config {
	s := cfg.Strategy
	return strategy.Config{
		Timezone:             s.Timezone,
		AllowedWindows:       s.AllowedWindows,
		ScanOutsideWindow:    s.ScanOutsideWindow,
		MinAvgDailyVolume:    s.MinAvgDailyVolume,
		MinPrice:             s.MinPrice,
		MaxPrice:             s.MaxPrice,
		BoxBars:              s.BoxBars,
		BoxMaxRangePct:       s.BoxMaxRangePct,
		ATRCompFactor:        s.ATRCompFactor,
		VolContractionFactor: s.VolContractionFactor,
		BreakBufferPct:       s.BreakBufferPct,
		MaxExtensionPct:      s.MaxExtensionPct,
		BreakVolMult:         s.BreakVolMult,
		VWAPConfirm:          s.VWAPConfirm,
		EntryBufferPct:       s.EntryBufferPct,
		StopBufferPct:        s.StopBufferPct,
		VolumeExtrapolation:  s.VolumeExtrapolation,
		OffSessionVolumeFrac: s.OffSessionVolumeFrac,
	}
}

func optionsConfig(cfg *config.Config) optselect.Config {
	o := cfg.Options
	return optselect.Config{
		Timezone:        cfg.Strategy.Timezone,
		SpreadPctMax:    o.SpreadPctMax,
		MinVolume:       o.MinVolume,
		MinOpenInterest: o.MinOpenInterest,
		MinMid:          o.MinMid,
		IVPctlMaxForAgg: o.IVPctlMaxForAgg,
		IVPctlMaxForAny: o.IVPctlMaxForAny,
		LenientMode:     o.LenientMode,
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops everything
func waitForShutdown(scheduler *workers.Scheduler, metricsSrv *http.Server, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	scheduler.Stop()

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Warnf("Metrics server shutdown error: %v", err)
		}
	}

	if errorTracker != nil {
		if err := errorTracker.Flush(context.Background()); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
