// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Failover  FailoverConfig
	Publish   PublishConfig
	Admin     AdminConfig
	Flood     FloodConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	Limits domain.Limits
}

type FailoverConfig struct {
	FailureThreshold int
	RetryAfter       time.Duration
	ProbeTimeout     time.Duration
}

type PublishConfig struct {
	WebhookURL string
	Attempts   int
	Backoff    time.Duration
}

type AdminConfig struct {
	Token string
}

type FloodConfig struct {
	RequestsPerSecond int64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}
	database := DatabaseConfig{Path: getEnv("DATABASE_PATH", "data/vzoelfess.db")}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimitConfig, err := buildRateLimitConfig()
	if err != nil {
		return Config{}, err
	}

	failoverConfig, err := buildFailoverConfig()
	if err != nil {
		return Config{}, err
	}

	publishAttempts, err := getEnvInt("PUBLISH_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	publishBackoffSeconds, err := getEnvInt("PUBLISH_BACKOFF_SECONDS", 1)
	if err != nil {
		return Config{}, err
	}

	floodPerSecond, err := getEnvInt("FLOOD_REQUESTS_PER_SECOND", 50)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:    server,
		Database:  database,
		Redis:     redisConfig,
		RateLimit: rateLimitConfig,
		Failover:  failoverConfig,
		Publish: PublishConfig{
			WebhookURL: getEnv("PUBLISH_WEBHOOK_URL", ""),
			Attempts:   publishAttempts,
			Backoff:    time.Duration(publishBackoffSeconds) * time.Second,
		},
		Admin: AdminConfig{Token: os.Getenv("ADMIN_TOKEN")},
		Flood: FloodConfig{RequestsPerSecond: int64(floodPerSecond)},
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	port, err := getEnvInt("REDIS_PORT", 6379)
	if err != nil {
		return RedisConfig{}, err
	}
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildRateLimitConfig() (RateLimitConfig, error) {
	perHour, err := getEnvInt("MESSAGES_PER_HOUR", 5)
	if err != nil {
		return RateLimitConfig{}, err
	}
	perDay, err := getEnvInt("MESSAGES_PER_DAY", 20)
	if err != nil {
		return RateLimitConfig{}, err
	}
	cooldownMinutes, err := getEnvInt("COOLDOWN_MINUTES", 10)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{
		Limits: domain.Limits{
			MaxPerHour: perHour,
			MaxPerDay:  perDay,
			Cooldown:   time.Duration(cooldownMinutes) * time.Minute,
		},
	}, nil
}

func buildFailoverConfig() (FailoverConfig, error) {
	threshold, err := getEnvInt("RATE_BACKEND_FAILURE_THRESHOLD", 3)
	if err != nil {
		return FailoverConfig{}, err
	}
	retrySeconds, err := getEnvInt("RATE_BACKEND_RETRY_SECONDS", 30)
	if err != nil {
		return FailoverConfig{}, err
	}
	probeTimeoutMs, err := getEnvInt("RATE_BACKEND_PROBE_TIMEOUT_MS", 500)
	if err != nil {
		return FailoverConfig{}, err
	}

	return FailoverConfig{
		FailureThreshold: threshold,
		RetryAfter:       time.Duration(retrySeconds) * time.Second,
		ProbeTimeout:     time.Duration(probeTimeoutMs) * time.Millisecond,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
