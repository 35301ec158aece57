package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config is the environment-supplied configuration surface for civio-api.
type Config struct {
	Addr          string
	PostgresDSN   string
	RedisAddr     string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CacheTTL      time.Duration
	CacheListTTL  time.Duration
	Environment   string
}

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAddr         = ":8080"
	DefaultAccessTTL    = 15 * time.Minute
	DefaultRefreshTTL   = 7 * 24 * time.Hour
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheListTTL = time.Minute
)

var (
	ErrSecretsMissing = errors.New("config: access and refresh secrets are required")
	ErrSecretsEqual   = errors.New("config: access and refresh secrets must differ")
)

// Load reads configuration from the environment. Token secrets are
// validated eagerly: forging one token class must never be possible with
// the other class's key.
func Load() (Config, error) {
	cfg := Config{
		Addr:          getenv("CIVIO_ADDR", DefaultAddr),
		PostgresDSN:   getenv("CIVIO_PG_DSN", ""),
		RedisAddr:     getenv("CIVIO_REDIS_ADDR", ""),
		AccessSecret:  getenv("CIVIO_ACCESS_SECRET", ""),
		RefreshSecret: getenv("CIVIO_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("CIVIO_ACCESS_TTL", DefaultAccessTTL),
		RefreshTTL:    getDuration("CIVIO_REFRESH_TTL", DefaultRefreshTTL),
		CacheTTL:      getDuration("CIVIO_CACHE_TTL", DefaultCacheTTL),
		CacheListTTL:  getDuration("CIVIO_CACHE_LIST_TTL", DefaultCacheListTTL),
		Environment:   getenv("CIVIO_ENV", "development"),
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, ErrSecretsMissing
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, ErrSecretsEqual
	}
	return cfg, nil
}

// Production reports whether cookies should carry the Secure attribute.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
