package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/application/command"
	"github.com/founderlink/founder-match/internal/application/eventhandler"
	"github.com/founderlink/founder-match/internal/application/query"
	"github.com/founderlink/founder-match/internal/application/session"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/internal/infrastructure/explain"
	"github.com/founderlink/founder-match/internal/infrastructure/messaging"
	"github.com/founderlink/founder-match/internal/infrastructure/metrics"
	"github.com/founderlink/founder-match/internal/infrastructure/persistence/postgres"
	"github.com/founderlink/founder-match/internal/infrastructure/persistence/redis"
	"github.com/founderlink/founder-match/internal/infrastructure/scheduler"
	"github.com/founderlink/founder-match/internal/infrastructure/snapshot"
	httpserver "github.com/founderlink/founder-match/internal/interface/http"
	"github.com/founderlink/founder-match/internal/interface/http/handlers"
	"github.com/founderlink/founder-match/pkg/circuitbreaker"
	"github.com/founderlink/founder-match/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// КОМАНДА SERVE
// ══════════════════════════════════════════════════════════════════════════════

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// profileSource - провайдер профилей и, для Postgres, хранилище фактов.
type profileSource struct {
	provider matching.ProfileProvider
	store    matching.ConnectionStore
	snapshot *snapshot.Provider
	db       *postgres.Connection
}

func runServe(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting founder-match",
		logger.String("version", version),
		logger.String("mutual_policy", cfg.Matching.MutualPolicy),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИСТОЧНИК ПРОФИЛЕЙ (PostgreSQL или JSON-снимок)
	// ─────────────────────────────────────────────────────────────────────────
	src, err := openProfileSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	if src.db != nil {
		defer func() {
			log.Info("closing database connection...")
			src.db.Close()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (кэш выдач, намерения, объяснения)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		cache, err = redis.NewCache(ctx, cfg.Redis)
		switch {
		case err == nil:
			defer func() { _ = cache.Close() }()
			log.Info("redis connection established")
		case cfg.Matching.MutualPolicy == config.MutualPolicyIntent:
			return fmt.Errorf("redis is required by the intent policy: %w", err)
		default:
			log.Warn("redis unavailable, caching and explanations disabled", logger.Err(err))
			cache = nil
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МЕТРИКИ И ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	busCfg.Metrics = collector
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	_ = bus.SubscribeAll(func(e shared.Event) error {
		log.Debug("domain event",
			logger.String("event_type", string(e.EventType())),
			logger.String("aggregate_id", e.AggregateID()),
		)
		return nil
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ДОМЕН: политика взаимности, сессии, ранжировщик
	// ─────────────────────────────────────────────────────────────────────────
	var policy matching.MutualMatchPolicy = matching.NewRandomPolicy(cfg.Matching.MutualProbability, nil)
	if cfg.Matching.MutualPolicy == config.MutualPolicyIntent {
		policy = matching.NewIntentPolicy(redis.NewIntentStore(cache, cfg.Matching.IntentTTL))
	}
	registry := session.NewRegistry(session.WithPolicy(policy))
	collector.RegisterActiveSessions(registry.Len)

	ranker, err := buildRanker(cfg.Matching, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	rankOpts := []query.RankOption{
		query.WithFeatureGate(cfg.Features),
		query.WithPublisher(bus),
		query.WithRankingMetrics(collector),
		query.WithLogger(log),
		query.WithRankConfig(query.RankConfig{
			DefaultLimit: cfg.Matching.DefaultLimit,
			Timeout:      cfg.Matching.RankTimeout,
			CacheTTL:     cfg.Matching.CacheTTL,
		}),
	}
	if cache != nil && cfg.Matching.CacheTTL > 0 {
		rankOpts = append(rankOpts, query.WithRankingCache(redis.NewRankingCache(cache)))
	}

	swipeOpts := []command.SwipeOption{
		command.WithPublisher(bus),
		command.WithFeatureGate(cfg.Features),
		command.WithSwipeMetrics(collector),
		command.WithLogger(log),
	}
	if src.store != nil {
		swipeOpts = append(swipeOpts, command.WithConnectionStore(src.store))
	}

	deps := httpserver.Dependencies{
		RankHandler:        query.NewRankCandidatesHandler(src.provider, ranker, registry, rankOpts...),
		CurrentHandler:     query.NewGetCurrentCandidateHandler(registry),
		ConnectionsHandler: query.NewListConnectionsHandler(registry, src.store, log),
		SwipeHandler:       command.NewSwipeHandler(registry, swipeOpts...),
		Metrics:            collector,
		Logger:             log,
		Version:            version,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ОБОГАЩЕНИЕ ОБЪЯСНЕНИЯМИ (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cache != nil {
		explanations := redis.NewExplanationStore(cache, cfg.Explanation.CacheTTL)
		deps.ExplanationHandler = query.NewGetExplanationHandler(explanations)

		if cfg.Explanation.Enabled() {
			if err := subscribeExplanations(cfg.Explanation, bus, explanations, collector, cfg.Features, log); err != nil {
				return err
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(version)
	if src.db != nil {
		health.AddCheck("postgres", handlers.PingCheck(src.db))
	}
	if src.snapshot != nil {
		health.AddCheck("snapshot", func(context.Context) error {
			if src.snapshot.Len() == 0 {
				return errors.New("snapshot is empty")
			}
			return nil
		})
	}
	if cache != nil {
		if cfg.Matching.MutualPolicy == config.MutualPolicyIntent {
			health.AddCheck("redis", handlers.PingCheck(cache))
		} else {
			health.AddOptionalCheck("redis", handlers.PingCheck(cache))
		}
	}
	deps.HealthChecker = health

	if cfg.Observability.MetricsEnabled {
		deps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	jobs, err := startMaintenance(ctx, cfg.Matching, registry, src.snapshot, collector, log)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Stop() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.ConfigFrom(cfg.HTTP), deps)
	errCh := server.StartAsync()

	if src.snapshot != nil {
		go reloadOnHangup(ctx, src.snapshot, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ОЖИДАНИЕ СИГНАЛА И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	log.Info("founder-match stopped")
	return nil
}

// openProfileSource выбирает провайдер по конфигурации: DATABASE_URL
// важнее MATCH_SNAPSHOT_PATH.
func openProfileSource(ctx context.Context, cfg *config.Config, log *logger.Logger) (*profileSource, error) {
	kind, err := cfg.ProfileSource()
	if err != nil {
		return nil, err
	}

	if kind == "snapshot" {
		p, err := snapshot.Load(cfg.Matching.SnapshotPath)
		if err != nil {
			return nil, err
		}
		log.Info("profile snapshot loaded",
			logger.String("path", cfg.Matching.SnapshotPath),
			logger.PoolSize(p.Len()),
		)
		return &profileSource{provider: p, snapshot: p}, nil
	}

	log.Info("connecting to database...")
	db, err := postgres.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		log.Info("running database migrations...")
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Info("database connection established")

	return &profileSource{
		provider: postgres.NewProfileRepository(db),
		store:    postgres.NewConnectionRepository(db),
		db:       db,
	}, nil
}

// subscribeExplanations подключает обработчик CandidatesRanked к шине.
func subscribeExplanations(
	cfg config.ExplanationConfig,
	bus shared.EventSubscriber,
	store matching.ExplanationStore,
	collector *metrics.Collectors,
	features *config.FeatureFlags,
	log *logger.Logger,
) error {
	breaker := circuitbreaker.ExplanationServiceBreaker(
		cfg.CircuitBreakerThreshold,
		cfg.CircuitBreakerTimeout,
		cfg.CircuitBreakerHalfOpenMax,
		func(name string, from, to circuitbreaker.State) {
			collector.BreakerStateChanged(name, from, to)
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)

	handler := eventhandler.NewOnCandidatesRankedHandler(
		explain.NewClient(explain.ConfigFrom(cfg), log),
		store,
		eventhandler.WithBreaker(breaker),
		eventhandler.WithFeatureGate(features),
		eventhandler.WithMetrics(collector),
		eventhandler.WithLogger(log),
		eventhandler.WithConfig(eventhandler.ExplanationConfig{
			TopN:           cfg.TopN,
			RequestTimeout: explanationBudget(cfg),
		}),
	)
	return bus.Subscribe(shared.EventCandidatesRanked, handler.Handle)
}

// explanationBudget - бюджет одного объяснения с учётом всех повторов:
// таймаут клиента ограничивает одну попытку.
func explanationBudget(cfg config.ExplanationConfig) time.Duration {
	attempts := time.Duration(max(cfg.MaxRetries, 0) + 1)
	return cfg.RequestTimeout*attempts + cfg.RetryMaxDelay*(attempts-1)
}

// startMaintenance запускает фоновые задачи: истечение сессий и,
// для снимка, периодическое перечитывание файла.
func startMaintenance(
	ctx context.Context,
	cfg config.MatchingConfig,
	registry *session.Registry,
	snap *snapshot.Provider,
	collector *metrics.Collectors,
	log *logger.Logger,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.Config{Logger: log, Metrics: collector})

	if cfg.SessionTTL > 0 {
		job := scheduler.NewSweepSessionsJob(registry, cfg.SessionTTL, log)
		if err := s.Register(job, scheduler.Every(min(cfg.SessionTTL, time.Minute))); err != nil {
			return nil, err
		}
	}
	if snap != nil && cfg.SnapshotRefresh > 0 {
		if err := s.Register(scheduler.NewRefreshSnapshotJob(snap, log), scheduler.Every(cfg.SnapshotRefresh)); err != nil {
			return nil, err
		}
	}
	return s, s.Start(ctx)
}

// reloadOnHangup перечитывает снимок профилей по SIGHUP.
func reloadOnHangup(ctx context.Context, p *snapshot.Provider, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := p.Reload(); err != nil {
				log.Error("snapshot reload failed, keeping previous snapshot", logger.Err(err))
				continue
			}
			log.Info("profile snapshot reloaded", logger.PoolSize(p.Len()))
		}
	}
}
