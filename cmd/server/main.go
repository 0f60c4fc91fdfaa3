package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"useraccounts/docs"
	"useraccounts/internal/auth"
	"useraccounts/internal/cache"
	"useraccounts/internal/config"
	"useraccounts/internal/db"
	"useraccounts/internal/handler"
	"useraccounts/internal/jobs"
	"useraccounts/internal/logging"
	"useraccounts/internal/mail"
	"useraccounts/internal/repository"
	"useraccounts/internal/router"
	"useraccounts/internal/service"
)

// @title User Accounts API
// @version 1.0
// @description Account registration, login, password reset and role-gated administration.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		fatal(ctx, logger, "database init", err)
	}

	if cfg.ResetDB {
		logger.Warn(ctx, "RESET_DB=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			logger.Warn(ctx, "failed to drop tables (may not exist)", "error", err)
		}
	}

	if err := db.Migrate(gormDB); err != nil {
		fatal(ctx, logger, "migrate", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn(ctx, "redis unreachable, serving without cache", "addr", cfg.RedisAddr, "error", err)
	}

	accountRepo := repository.NewAccountRepository(gormDB)

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	jwtService := auth.NewJWTService(cfg.JWTSecret, utcNow)
	mailer := mail.New(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)

	accountService := service.NewAccountService(accountRepo, hasher, jwtService, cacheClient, logger, utcNow)
	resetService := service.NewPasswordResetService(accountRepo, hasher, jwtService, mailer, cacheClient, logger, utcNow, service.ResetConfig{
		URLBase:     cfg.ResetURLBase,
		MailTimeout: cfg.MailTimeout,
	})

	sweeper, err := jobs.Start(cfg.ResetSweepSchedule, jobs.NewResetSweeper(accountRepo, logger, utcNow))
	if err != nil {
		fatal(ctx, logger, "start jobs", err)
	}

	e := echo.New()
	router.Register(
		e,
		logger,
		jwtService,
		accountService,
		handler.NewAuthHandler(accountService, resetService),
		handler.NewAccountHandler(accountService),
	)

	if cfg.SwaggerHost != "" {
		// SwaggerHost may already include scheme (http:// or https://)
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
		docs.SwaggerInfo.Host = host
	}
	logger.Info(ctx, "swagger documentation available", "url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html")

	addr := ":" + cfg.ServerPort
	go func() {
		logger.Info(ctx, "server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(ctx, logger, "server start", err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	<-sweeper.Stop().Done()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown failed", "error", err)
	}
}

func utcNow() time.Time { return time.Now().UTC() }

func fatal(ctx context.Context, logger logging.Logger, msg string, err error) {
	logger.Error(ctx, msg, "error", err)
	os.Exit(1)
}
