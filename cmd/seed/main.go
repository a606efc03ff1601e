// seed inserts development sample accounts for local testing.
// Idempotent: skips inserts if the dev admin (admin@club.example) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fitclub-access/internal/config"
	"fitclub-access/internal/db"
	"fitclub-access/internal/security"
	"fitclub-access/internal/user/domain"
	userrepo "fitclub-access/internal/user/repository"
)

const (
	adminEmail    = "admin@club.example"
	trainerEmail  = "trainer@club.example"
	memberEmail   = "member@club.example"
	inactiveEmail = "inactive@club.example"
	devPassword   = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)

	existing, err := users.GetByEmail(ctx, domain.TypeStaff, adminEmail)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Printf("seed: %s already exists, nothing to do", adminEmail)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}

	for _, u := range devAccounts(hash, time.Now().UTC()) {
		if err := u.Validate(); err != nil {
			log.Fatalf("seed: %s: %v", u.Email, err)
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed: insert %s: %v", u.Email, err)
		}
		log.Printf("seed: created %s %s (%s)", u.Type, u.Email, u.Role)
	}
	log.Printf("seed: done; all accounts use password %q", devPassword)
}

// devAccounts builds the sample accounts, all sharing the same password hash.
func devAccounts(hash string, now time.Time) []*domain.User {
	accounts := []*domain.User{
		{Type: domain.TypeStaff, Email: adminEmail, Name: "Dev Admin", Role: "admin", IsActive: true},
		{Type: domain.TypeStaff, Email: trainerEmail, Name: "Dev Trainer", Role: "trainer", IsActive: true},
		{Type: domain.TypeMember, Email: memberEmail, Name: "Dev Member", Role: "member", IsActive: true},
		{Type: domain.TypeMember, Email: inactiveEmail, Name: "Dev Inactive", Role: "member", IsActive: false},
	}
	for _, u := range accounts {
		u.ID = uuid.New().String()
		u.PasswordHash = hash
		u.CreatedAt = now
		u.UpdatedAt = now
	}
	return accounts
}
