package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/leadpulse/outreach/internal/api"
	"github.com/leadpulse/outreach/internal/capability"
	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/ingest"
	"github.com/leadpulse/outreach/internal/pkg/logger"
	"github.com/leadpulse/outreach/internal/repository/postgres"
	"github.com/leadpulse/outreach/internal/scoring"
	"github.com/leadpulse/outreach/internal/service/enrollment"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
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

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
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
	scorer := scoring.NewService(scoring.NewEngine(), store.Prospects, store.Interactions)

	queue := ingest.NewRedisQueue(redisClient, cfg.Ingest.QueueKey)
	ingestSvc := ingest.NewService(store.Interactions, queue)

	handlers := api.NewHandlers(
		store.Prospects,
		store.Sequences,
		store.Templates,
		renderer,
		store.Interactions,
		enrollmentSvc,
		suppressionSvc,
		ingestSvc,
		capabilityRes,
		store.Organizations,
		scorer,
	)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	logger.Info("server stopped")
}
