// Package main seeds a SocialGate database with demo users and messages,
// matching the fixtures used throughout the test suite. Intended for local
// development against a fresh Postgres instance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/store/postgres"
	"github.com/c360/socialgate/user"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := postgres.Connect(ctx, databaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	return seed(ctx, st)
}

func seed(ctx context.Context, st *postgres.Store) error {
	admin, err := user.New(uuid.NewString(), "rwieruch", "hello@robin.com", "rwieruch")
	if err != nil {
		return err
	}
	admin.Role = "ADMIN"

	dave, err := user.New(uuid.NewString(), "ddavids", "hello@david.com", "ddavids")
	if err != nil {
		return err
	}

	for _, u := range []*user.User{admin, dave} {
		if err := st.Users().Create(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.Username, err)
		}
		slog.Info("Seeded user", "username", u.Username, "role", u.Role)
	}

	seedMessages := []struct {
		author *user.User
		text   string
	}{
		{admin, "Published the Road to learn React"},
		{dave, "Happy to release a GraphQL in React tutorial"},
		{dave, "A complete React with Apollo and GraphQL Tutorial"},
	}
	for _, sm := range seedMessages {
		m, err := message.New(uuid.NewString(), sm.text, sm.author.ID)
		if err != nil {
			return err
		}
		if err := st.Messages().Create(ctx, m); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		slog.Info("Seeded message", "author", sm.author.Username)
	}

	slog.Info("Seed complete")
	return nil
}
