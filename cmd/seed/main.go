// seed inserts a verified dev user into the local database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/febriansr/authgate/internal/infrastructure/postgres"
	"github.com/febriansr/authgate/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	seedEmail    = "dev@test.local"
	seedName     = "Dev User"
	seedPassword = "Passw0rd-dev"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	if err := postgres.Migrate(ctx, databaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	users := postgres.NewUserRepository(pool)
	user, err := users.Create(ctx, repository.CreateUserParams{
		Email:        seedEmail,
		Name:         seedName,
		PasswordHash: string(hash),
	})
	if err != nil {
		log.Fatalf("create seed user: %v", err)
	}

	if err := users.MarkEmailVerified(ctx, user.ID); err != nil {
		log.Fatalf("verify seed user: %v", err)
	}

	fmt.Printf("seeded verified user %s (password: %s)\n", seedEmail, seedPassword)
}
