package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// HistoryDriverFile stores history as a single JSON document on disk.
	HistoryDriverFile = "file"
	// HistoryDriverRedis stores history under a single Redis key.
	HistoryDriverRedis = "redis"
	// HistoryDriverSQLite stores history in a local SQLite table.
	HistoryDriverSQLite = "sqlite"
	// HistoryDriverPostgres stores history in a PostgreSQL table.
	HistoryDriverPostgres = "postgres"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	AIProvider    string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AIMaxTokens   int
	AITemperature float32

	GradingItemDelay      time.Duration
	GradingTimeout        time.Duration
	GradingRecomputeScore bool

	HistoryDriver   string
	HistoryPath     string
	HistoryRedisKey string
	HistorySQLite   string

	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	EventsChannel string

	UploadMaxSizeMB int
	StartRateLimit  int
	StartRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadLimitBytes is the maximum accepted request body size.
func (c Config) UploadLimitBytes() int {
	return c.UploadMaxSizeMB * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA AutoGrader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("grading.item_delay", "1s")
	v.SetDefault("grading.timeout", "90s")
	v.SetDefault("grading.recompute_score", false)
	v.SetDefault("history.driver", HistoryDriverFile)
	v.SetDefault("history.path", "data/grading_history.json")
	v.SetDefault("history.redis_key", "grading_history")
	v.SetDefault("history.sqlite_path", "data/grading_history.db")
	v.SetDefault("events.channel", "gema:grading")
	v.SetDefault("upload.max_size_mb", 20)
	v.SetDefault("rate_limit.start.max", 10)
	v.SetDefault("rate_limit.start.window", "1m")

	itemDelay, err := parseDuration(v, "grading.item_delay")
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseDuration(v, "grading.timeout")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "rate_limit.start.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		AIProvider:            strings.ToLower(v.GetString("ai.provider")),
		AIAPIKey:              v.GetString("ai.api_key"),
		AIBaseURL:             v.GetString("ai.base_url"),
		AIModel:               v.GetString("ai.model"),
		AIMaxTokens:           v.GetInt("ai.max_tokens"),
		AITemperature:         float32(v.GetFloat64("ai.temperature")),
		GradingItemDelay:      itemDelay,
		GradingTimeout:        timeout,
		GradingRecomputeScore: v.GetBool("grading.recompute_score"),
		HistoryDriver:         strings.ToLower(v.GetString("history.driver")),
		HistoryPath:           v.GetString("history.path"),
		HistoryRedisKey:       v.GetString("history.redis_key"),
		HistorySQLite:         v.GetString("history.sqlite_path"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		EventsChannel:         v.GetString("events.channel"),
		UploadMaxSizeMB:       v.GetInt("upload.max_size_mb"),
		StartRateLimit:        v.GetInt("rate_limit.start.max"),
		StartRateWindow:       window,
	}

	switch cfg.HistoryDriver {
	case HistoryDriverFile, HistoryDriverSQLite:
	case HistoryDriverRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis url is required for the redis history driver")
		}
	case HistoryDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url is required for the postgres history driver")
		}
	default:
		return Config{}, fmt.Errorf("unsupported history driver %q", cfg.HistoryDriver)
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 20
	}
	if cfg.StartRateLimit <= 0 {
		cfg.StartRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := v.GetString(key)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
