package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attest/internal/audit"
	"attest/internal/issuer"
	nullstore "attest/internal/nullifier/store"
	"attest/internal/payment"
	"attest/internal/platform/config"
	"attest/internal/platform/database"
	"attest/internal/platform/health"
	"attest/internal/platform/kafka/producer"
	"attest/internal/platform/logger"
	"attest/internal/platform/redis"
	"attest/internal/provider"
	"attest/internal/provider/facetec"
	"attest/internal/provider/onfido"
	"attest/internal/provider/persona"
	"attest/internal/provider/sumsub"
	regstore "attest/internal/registration/store"
	"attest/internal/screening"
	screenstore "attest/internal/screening/store"
	"attest/internal/session/handler"
	"attest/internal/session/metrics"
	"attest/internal/session/service"
	sessionstore "attest/internal/session/store"
	httptransport "attest/internal/transport/http"
)

// main wires the orchestrator's collaborators and keeps the server lifecycle
// small. Business logic lives in internal packages; every store and
// collaborator degrades to an in-process implementation when its backing
// service is not configured, so a bare `go run` works for development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing attest",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	iss, err := issuer.New(cfg.IssuerPrivateKey, log)
	if err != nil {
		log.Error("issuer init failed", "error", err)
		os.Exit(1)
	}

	pool, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		sessions      sessionstore.Store
		allowlist     sessionstore.AllowlistStore
		registrations regstore.Store
		collisions    regstore.CollisionStore
		nullifiers    nullstore.Store
		screeningHits screenstore.Store
	)
	if pool != nil {
		sessions = sessionstore.NewPostgresStore(pool.DB())
		allowlist = sessionstore.NewPostgresAllowlistStore(pool.DB())
		registrations = regstore.NewPostgresStore(pool.DB())
		collisions = regstore.NewPostgresCollisionStore(pool.DB())
		nullifiers = nullstore.NewPostgresStore(pool.DB())
		screeningHits = screenstore.NewPostgresStore(pool.DB())
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		sessions = sessionstore.NewMemoryStore()
		allowlist = sessionstore.NewMemoryAllowlistStore()
		registrations = regstore.NewMemoryStore()
		collisions = regstore.NewMemoryCollisionStore()
		nullifiers = nullstore.NewMemoryStore()
		screeningHits = screenstore.NewMemoryStore()
	}

	redisClient, err := redis.Open(config.DefaultRedisConfig(cfg.RedisURL))
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	var refundMutex payment.Mutex
	if redisClient != nil {
		defer redisClient.Close()
		refundMutex = payment.NewRedisMutex(redisClient, log)
	} else {
		log.Warn("REDIS_URL not set, refund locking is per-process only")
		refundMutex = payment.NewMemoryMutex()
	}

	var sink audit.Sink
	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Acks:            "all",
			Retries:         5,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
		sink = audit.NewKafkaSink(kafkaProducer, cfg.AuditTopic)
	} else {
		log.Warn("KAFKA_BROKERS not set, audit events stay in memory")
		sink = audit.NewMemorySink()
	}
	publisher := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(1024),
		audit.WithPublisherLogger(log),
	)
	defer publisher.Close()

	registry := provider.NewRegistry()
	registerProviders(registry, cfg, log)

	var funding payment.FundingVerifier
	var refunder payment.Refunder
	if cfg.PaymentBaseURL != "" {
		client := payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentAPIKey)
		funding, refunder = client, client
	} else {
		log.Warn("PAYMENT_BASE_URL not set, funding checks and refunds are simulated")
		funding = payment.StaticFundingVerifier(true)
		refunder = payment.NoopRefunder{}
	}

	svc := service.New(service.Config{
		Sessions:        sessions,
		Allowlist:       allowlist,
		Providers:       registry,
		Screener:        screening.NewClient(cfg.SanctionsBaseURL, cfg.SanctionsAPIKey, log),
		ScreeningHits:   screeningHits,
		Registrations:   registrations,
		Collisions:      collisions,
		Nullifiers:      nullifiers,
		Issuer:          iss,
		Funding:         funding,
		Refunder:        refunder,
		RefundMutex:     refundMutex,
		BlockedPrefixes: config.BlockedIdentifierPrefixes(),
	},
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAudit(publisher),
	)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	if kafkaProducer != nil {
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(ctx) {
				return errors.New("kafka unreachable")
			}
			return nil
		})
	}

	router := httptransport.NewRouter(httptransport.Config{
		Sessions:       handler.New(svc, log),
		Health:         healthHandler,
		AdminJWTSecret: cfg.AdminJWTSecret,
		RequestTimeout: cfg.RequestTimeout,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// registerProviders wires each verification provider that has credentials
// configured. An empty registry is allowed; session creation will then reject
// every provider name.
func registerProviders(registry *provider.Registry, cfg config.Server, log *slog.Logger) {
	if cfg.OnfidoToken != "" {
		mustRegister(registry, onfido.New(cfg.OnfidoBaseURL, cfg.OnfidoToken, log), log)
	}
	if cfg.SumsubToken != "" && cfg.SumsubSecret != "" {
		mustRegister(registry, sumsub.New(cfg.SumsubBaseURL, cfg.SumsubToken, cfg.SumsubSecret, log), log)
	}
	if cfg.FaceTecToken != "" {
		mustRegister(registry, facetec.New(cfg.FaceTecBaseURL, cfg.FaceTecToken, log), log)
	}
	if cfg.PersonaToken != "" {
		mustRegister(registry, persona.New(cfg.PersonaBaseURL, cfg.PersonaToken, log), log)
	}
	if len(registry.All()) == 0 {
		log.Warn("no verification providers configured")
	}
}

func mustRegister(registry *provider.Registry, v provider.Verifier, log *slog.Logger) {
	if err := registry.Register(v); err != nil {
		log.Error("provider registration failed", "provider", v.Name(), "error", err)
		os.Exit(1)
	}
}
