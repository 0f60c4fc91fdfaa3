package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	DBDriver    string
	DatabaseDSN string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	JWTSecret   string
	BcryptCost  int
	SwaggerHost string
	LogLevel    string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTimeout  time.Duration

	// ResetURLBase is prefixed to the reset token in password reset emails.
	ResetURLBase       string
	ResetSweepSchedule string

	SeedAccountsURL string
	ResetDB         bool
}

// Load builds Config from environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DBDriver:    getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN: getEnv("DATABASE_DSN", getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=UTC")),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me"),
		BcryptCost:  getEnvInt("BCRYPT_COST", 10),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@localhost"),
		MailTimeout:  getEnvDuration("MAIL_TIMEOUT", 10*time.Second),

		ResetURLBase:       getEnv("RESET_URL_BASE", "http://localhost:8080/users/reset-password"),
		ResetSweepSchedule: getEnv("RESET_SWEEP_SCHEDULE", "@every 15m"),

		SeedAccountsURL: os.Getenv("SEED_ACCOUNTS_URL"),
		ResetDB:         os.Getenv("RESET_DB") == "true",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
