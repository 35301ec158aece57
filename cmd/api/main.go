package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civio.org/internal/auth"
	"civio.org/internal/cache"
	"civio.org/internal/config"
	"civio.org/internal/httpapi"
	"civio.org/internal/issues"
	"civio.org/internal/obs"
	"civio.org/internal/store"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CIVIO_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// DB connection; the user and issue stores need it and /readyz pings it
	if cfg.PostgresDSN == "" {
		log.Fatal("CIVIO_PG_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Redis-backed cache; absent CIVIO_REDIS_ADDR the service runs with
	// every read going to the store.
	var c *cache.Cache
	if cfg.RedisAddr != "" {
		c = cache.New(cache.NewRedisBackend(cfg.RedisAddr))
	} else {
		c = cache.New(nil)
	}

	tokens, err := auth.NewTokenService(cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Tokens:        tokens,
		Users:         store.NewPGUserStore(db),
		Issues:        issues.NewService(store.NewPGIssueStore(db), c, cfg.CacheTTL, cfg.CacheListTTL),
		ReadyProbe:    httpapi.ReadyProbe{DB: db, Cache: c},
		Version:       version,
		SecureCookies: cfg.Production(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting civio-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
