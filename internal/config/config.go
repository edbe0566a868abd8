package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	// Rate Limit
	RateLimit       int
	RateLimitWindow time.Duration
	AuthRateLimit   int

	// Idempotency
	IdempotencyTTL time.Duration

	// Shared state
	RedisURL           string
	StateSweepInterval time.Duration

	// Internal API
	InternalAPIKey string

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AccessTokenTTL = time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 15)) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", bcrypt.DefaultCost)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 100)
	cfg.RateLimitWindow = time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second
	cfg.AuthRateLimit = getEnvInt("AUTH_RATE_LIMIT", 20)
	cfg.IdempotencyTTL = time.Duration(getEnvInt("IDEMPOTENCY_TTL", 86400)) * time.Second
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.StateSweepInterval = getEnvDuration("STATE_SWEEP_INTERVAL", 5*time.Minute)
	cfg.InternalAPIKey = getEnvString("INTERNAL_API_KEY", "")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は読み込んだ値の範囲を検証する。
func (c *Config) Validate() error {
	var invalid []string
	if c.AccessTokenTTL <= 0 {
		invalid = append(invalid, "ACCESS_TOKEN_EXPIRE_MINUTES")
	}
	if c.RefreshTokenTTL <= 0 {
		invalid = append(invalid, "REFRESH_TOKEN_EXPIRE_DAYS")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		invalid = append(invalid, "BCRYPT_COST")
	}
	if c.RateLimit <= 0 {
		invalid = append(invalid, "RATE_LIMIT")
	}
	if c.RateLimitWindow <= 0 {
		invalid = append(invalid, "RATE_LIMIT_WINDOW")
	}
	if c.AuthRateLimit <= 0 {
		invalid = append(invalid, "AUTH_RATE_LIMIT")
	}
	if c.IdempotencyTTL <= 0 {
		invalid = append(invalid, "IDEMPOTENCY_TTL")
	}
	if c.StateSweepInterval <= 0 {
		invalid = append(invalid, "STATE_SWEEP_INTERVAL")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("environment variables must be positive or in range: %v", invalid)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
