package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowOrigins   []string
	TrustedProxies []string
}

type RDWConfig struct {
	BaseURL          string
	AppToken         string
	Timeout          time.Duration
	OptionalDatasets bool
}

type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	RDW         RDWConfig
	Cache       CacheConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
}

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

func Load() (*Config, error) {
	// A plain .env next to the binary is honoured as well as app.env.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()
	setDefaults(v)

	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("RDW_BASE_URL", "https://opendata.rdw.nl")
	v.SetDefault("RDW_TIMEOUT", 10*time.Second)
	v.SetDefault("RDW_OPTIONAL_DATASETS", true)
	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("CACHE_TTL", 300*time.Second)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("RATE_LIMIT_MAX", 60)
}

func fromViper(v *viper.Viper) (*Config, error) {
	port, err := portFrom(v, "HTTP_PORT")
	if err != nil {
		return nil, err
	}
	// PORT is what most hosting platforms set.
	if port == 0 {
		if port, err = portFrom(v, "PORT"); err != nil {
			return nil, err
		}
	}
	if port == 0 {
		port = 3000
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           port,
			AllowOrigins:   splitList(v.GetString("CORS_ALLOW_ORIGINS")),
			TrustedProxies: splitList(v.GetString("TRUSTED_PROXIES")),
		},
		RDW: RDWConfig{
			BaseURL:          v.GetString("RDW_BASE_URL"),
			AppToken:         strings.TrimSpace(v.GetString("RDW_APP_TOKEN")),
			Timeout:          durationOrSeconds(v, "RDW_TIMEOUT"),
			OptionalDatasets: v.GetBool("RDW_OPTIONAL_DATASETS"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND"))),
			TTL:     durationOrSeconds(v, "CACHE_TTL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Window: durationOrSeconds(v, "RATE_LIMIT_WINDOW"),
			Max:    v.GetInt("RATE_LIMIT_MAX"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", cfg.HTTP.Port)
	}
	if cfg.RDW.BaseURL == "" {
		return fmt.Errorf("RDW_BASE_URL is required")
	}
	if cfg.RDW.Timeout <= 0 {
		return fmt.Errorf("RDW_TIMEOUT must be positive")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	switch cfg.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, cfg.Cache.Backend)
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.RateLimit.Max <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// portFrom returns 0 when key is unset.
func portFrom(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return port, nil
}

// durationOrSeconds accepts both Go durations ("5m") and bare integers, which
// are read as seconds.
func durationOrSeconds(v *viper.Viper, key string) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return time.Duration(n) * time.Second
	}
	return v.GetDuration(key)
}
