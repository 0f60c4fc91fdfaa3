package main

import (
	"context"
	"flag"
	"os"
	"time"

	"useraccounts/internal/auth"
	"useraccounts/internal/config"
	"useraccounts/internal/db"
	"useraccounts/internal/logging"
	"useraccounts/internal/repository"
	"useraccounts/internal/seed"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	url := flag.String("url", cfg.SeedAccountsURL, "URL of the JSON seed document (defaults to SEED_ACCOUNTS_URL)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *url == "" {
		logger.Error(ctx, "no seed source, set SEED_ACCOUNTS_URL or pass -url")
		os.Exit(2)
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}

	logger.Info(ctx, "fetching seed accounts", "url", *url)
	records, err := seed.Fetch(ctx, nil, *url)
	if err != nil {
		logger.Error(ctx, "failed to fetch seed accounts", "error", err)
		os.Exit(1)
	}

	res, err := seed.Apply(ctx, repository.NewAccountRepository(gormDB), auth.NewPasswordHasher(cfg.BcryptCost), records, logger, time.Now().UTC())
	if err != nil {
		logger.Error(ctx, "failed to seed accounts", "error", err)
		os.Exit(1)
	}

	logger.Info(ctx, "seed completed", "created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
}
