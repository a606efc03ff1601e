// Worker sweeps expired sessions and password-reset tokens on an interval.
// The server already expires both lazily on access; the sweep keeps storage
// bounded and writes the "expired" audit entries for tokens nobody touched.
// Set DATABASE_URL; REDIS_URL is required to sweep sessions (the in-memory
// store lives inside the server process and sweeps itself).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fitclub-access/internal/audit"
	auditrepo "fitclub-access/internal/audit/repository"
	"fitclub-access/internal/config"
	"fitclub-access/internal/db"
	"fitclub-access/internal/mailer"
	"fitclub-access/internal/reset"
	"fitclub-access/internal/security"
	"fitclub-access/internal/session"
	userrepo "fitclub-access/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: db: %v", err)
	}
	defer pool.Close()

	var sessions session.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("worker: redis: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("worker: redis: %v", err)
		}
		defer client.Close()
		sessions = session.NewRedisStore(client, cfg.SessionMaxAge())
	} else {
		log.Println("worker: REDIS_URL not set, session sweep disabled")
	}

	users := userrepo.NewPostgresRepository(pool)
	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pool), nil)
	hasher := security.NewHasher(cfg.BcryptCost)
	resets := reset.NewService(users, auditor, hasher, mailer.Noop{}, cfg.ResetTokenLifetime(), cfg.ResetLinkBaseURL)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	interval := cfg.Sweep()
	log.Printf("worker: sweeping every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, sessions, resets)
	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			sweep(ctx, sessions, resets)
		}
	}
}

func sweep(ctx context.Context, sessions session.Store, resets *reset.Service) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if sessions != nil {
		n, err := sessions.CleanupExpired(sweepCtx)
		if err != nil {
			log.Printf("worker: session sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("worker: removed %d expired sessions", n)
		}
	}

	n, err := resets.CleanupExpiredTokens(sweepCtx)
	if err != nil {
		log.Printf("worker: reset token sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("worker: cleared %d expired reset tokens", n)
	}
}
