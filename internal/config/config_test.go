package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CIVIO_ACCESS_SECRET", "access-secret")
	t.Setenv("CIVIO_REFRESH_SECRET", "refresh-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != DefaultAccessTTL {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != DefaultRefreshTTL {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.Production() {
		t.Fatalf("development env must not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CIVIO_ACCESS_SECRET", "access-secret")
	t.Setenv("CIVIO_REFRESH_SECRET", "refresh-secret")
	t.Setenv("CIVIO_ACCESS_TTL", "5m")
	t.Setenv("CIVIO_CACHE_TTL", "30s")
	t.Setenv("CIVIO_ENV", "Production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected cache ttl: %v", cfg.CacheTTL)
	}
	if !cfg.Production() {
		t.Fatalf("expected production environment")
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("CIVIO_ACCESS_SECRET", "access-secret")
	t.Setenv("CIVIO_REFRESH_SECRET", "refresh-secret")
	t.Setenv("CIVIO_ACCESS_TTL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != DefaultAccessTTL {
		t.Fatalf("expected default ttl, got %v", cfg.AccessTTL)
	}
}

func TestLoadSecretValidation(t *testing.T) {
	t.Setenv("CIVIO_ACCESS_SECRET", "")
	t.Setenv("CIVIO_REFRESH_SECRET", "")
	if _, err := Load(); !errors.Is(err, ErrSecretsMissing) {
		t.Fatalf("expected ErrSecretsMissing, got %v", err)
	}

	t.Setenv("CIVIO_ACCESS_SECRET", "same")
	t.Setenv("CIVIO_REFRESH_SECRET", "same")
	if _, err := Load(); !errors.Is(err, ErrSecretsEqual) {
		t.Fatalf("expected ErrSecretsEqual, got %v", err)
	}
}
