package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cuebook/internal/api"
	"cuebook/internal/config"
	"cuebook/internal/database"
	"cuebook/internal/logging"
	"cuebook/internal/seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		seedPath   = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		tokenTTL   = flag.Duration("tokens", 0, "print a bearer token per seeded user valid for this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := logging.Component(baseLogger, "seed")

	file, err := seed.Load(*seedPath)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.BusyTimeout, logging.Component(baseLogger, "database"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := file.Apply(ctx, db)
	if err != nil {
		return err
	}
	logger.Info().
		Int("users", summary.Users).
		Int("clubs", summary.Clubs).
		Int("tables", summary.Tables).
		Int("rates", summary.Rates).
		Str("db_path", cfg.Database.Path).
		Msg("seed applied")

	if *tokenTTL <= 0 {
		return nil
	}
	if cfg.API.Auth.JWTSecret == "" {
		return fmt.Errorf("api.auth.jwt_secret is empty, cannot issue tokens")
	}
	for _, u := range file.Users {
		token, err := api.IssueToken(cfg.API.Auth.JWTSecret, u.ID, u.Role, *tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token for user %d: %w", u.ID, err)
		}
		fmt.Printf("%d\t%s\t%s\n", u.ID, u.Role, token)
	}
	return nil
}
