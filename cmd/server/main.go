package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fitclub-access/internal/audit"
	auditproducer "fitclub-access/internal/audit/producer"
	auditrepo "fitclub-access/internal/audit/repository"
	"fitclub-access/internal/auth"
	"fitclub-access/internal/config"
	"fitclub-access/internal/db"
	"fitclub-access/internal/httpapi"
	"fitclub-access/internal/mailer"
	"fitclub-access/internal/reset"
	"fitclub-access/internal/security"
	"fitclub-access/internal/session"
	"fitclub-access/internal/telemetry"
	userrepo "fitclub-access/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()

	shutdownTracing := telemetry.Setup("fitclub-access")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	var sessions session.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		sessions = session.NewRedisStore(client, cfg.SessionMaxAge())
		log.Println("sessions: redis store")
	} else {
		sessions = session.NewMemoryStore(cfg.SessionMaxAge())
		log.Println("sessions: in-memory store (single instance only)")
	}

	var mail mailer.Mailer = mailer.Noop{}
	if cfg.SendGridAPIKey != "" {
		mail = mailer.NewSendGrid(cfg.SendGridAPIKey, cfg.ResetFromEmail, cfg.ResetFromName)
	} else {
		log.Println("mailer: SENDGRID_API_KEY not set, reset email disabled")
	}

	producer, err := auditproducer.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if producer != nil {
		defer producer.Close()
	}

	users := userrepo.NewPostgresRepository(pool)
	auditRepo := auditrepo.NewPostgresRepository(pool)
	var auditor audit.Recorder = audit.NewLogger(auditRepo, producer)

	hasher := security.NewHasher(cfg.BcryptCost)
	resets := reset.NewService(users, auditor, hasher, mail, cfg.ResetTokenLifetime(), cfg.ResetLinkBaseURL)
	authSvc := auth.NewService(users, sessions, hasher)

	handler := httpapi.NewHandler(httpapi.Options{
		Auth:               authSvc,
		Sessions:           sessions,
		Resets:             resets,
		Audit:              auditRepo,
		Pinger:             pool,
		SessionMaxAge:      cfg.SessionMaxAge(),
		StatsRecent:        cfg.SessionStatsRecent,
		DevTokenInResponse: cfg.ResetTokenReturnToClient,
	})
	if cfg.ResetTokenReturnToClient {
		log.Println("WARNING: raw reset tokens are returned in API responses (dev mode)")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler.Routes(), "fitclub-access"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
