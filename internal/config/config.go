// Package config reads service configuration from the environment.
// cmd/api loads .env first via godotenv, so local overrides come from a
// file while deployments use real environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config gathers the auth-core knobs. Defaults match the documented
// policy: 7d/30d token lifetimes, 5-strike 15-minute lockout, bcrypt 12.
type Config struct {
	HTTPAddr string

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	BcryptCost int

	MiniProgramAppID     string
	MiniProgramAppSecret string
	MiniProgramLoginURL  string

	RateMaxRequests int
	RateWindow      time.Duration
}

// FromEnv builds a Config from environment variables, applying defaults
// for anything unset.
func FromEnv() Config {
	return Config{
		HTTPAddr: envStr("HTTP_ADDR", "0.0.0.0:3000"),

		JWTSecret:       envStr("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTIssuer:       envStr("JWT_ISSUER", "backend-api-scaffold"),
		JWTAudience:     envStr("JWT_AUDIENCE", "scaffold-client"),
		AccessTokenTTL:  envDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		RefreshTokenTTL: envDuration("JWT_REFRESH_EXPIRES_IN", 30*24*time.Hour),

		LockoutMaxAttempts: envInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:    envDuration("LOCKOUT_DURATION", 15*time.Minute),

		BcryptCost: envInt("BCRYPT_COST", 12),

		MiniProgramAppID:     os.Getenv("MINIPROGRAM_APP_ID"),
		MiniProgramAppSecret: os.Getenv("MINIPROGRAM_APP_SECRET"),
		MiniProgramLoginURL:  os.Getenv("MINIPROGRAM_LOGIN_URL"),

		RateMaxRequests: envInt("RATE_MAX_REQUESTS", 100),
		RateWindow:      envDuration("RATE_WINDOW", 15*time.Minute),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
