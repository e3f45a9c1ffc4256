package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/leadpulse/outreach/internal/capability"
	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/dispatch"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/ingest"
	"github.com/leadpulse/outreach/internal/pkg/logger"
	"github.com/leadpulse/outreach/internal/provider"
	"github.com/leadpulse/outreach/internal/repository/postgres"
	"github.com/leadpulse/outreach/internal/scoring"
	"github.com/leadpulse/outreach/internal/service/enrollment"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

func buildProviders(cfg *config.Config) *provider.Registry {
	var providers []provider.Provider

	if cfg.Email.Enabled {
		ses, err := provider.NewSESProvider(cfg.Email)
		if err != nil {
			log.Fatalf("Failed to initialize SES provider: %v", err)
		}
		providers = append(providers, ses)
	}
	gateways := []struct {
		channel domain.Channel
		cfg     config.GatewayConfig
	}{
		{domain.ChannelSMS, cfg.SMS},
		{domain.ChannelChat, cfg.Chat},
		{domain.ChannelVoiceDrop, cfg.Voice},
		{domain.ChannelPostal, cfg.Postal},
	}
	for _, gw := range gateways {
		if gw.cfg.Enabled {
			providers = append(providers, provider.NewGatewayProvider(gw.channel, gw.cfg))
		}
	}
	return provider.NewRegistry(providers...)
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	store := postgres.NewStore(db)

	suppressionSvc := suppression.NewService(store.Suppressions)
	enrollmentSvc := enrollment.NewService(store.Enrollments, store.Sequences, store.Prospects, suppressionSvc).
		WithAudit(store.Interactions)
	capabilityRes := capability.NewResolver(suppressionSvc)
	renderer := content.NewRenderer(store.Templates)
	providers := buildProviders(cfg)

	pool := dispatch.NewPool(
		cfg.Dispatch,
		postgres.NewDispatchStore(store),
		enrollmentSvc,
		suppressionSvc,
		capabilityRes,
		renderer,
		providers,
	)
	pool.Start()
	logger.Info("dispatch pool started", "workers", cfg.Dispatch.Workers)

	queue := ingest.NewRedisQueue(redisClient, cfg.Ingest.QueueKey)
	scorer := scoring.NewService(scoring.NewEngine(), store.Prospects, store.Interactions)
	consumer := ingest.NewConsumer(
		cfg.Ingest,
		queue,
		redisClient,
		db,
		scorer,
		store.Prospects,
		enrollmentSvc,
		suppressionSvc,
	)

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	consumer.Stop()
	pool.Stop()
	logger.Info("worker stopped")
}
