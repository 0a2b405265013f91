package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/api"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/collector"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/config"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	log "github.com/sirupsen/logrus"
)

func main() {
	// hash-password prints a bcrypt hash for ADMIN_PASSWORD_HASH / SHARED_PASSWORD_HASH
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		hash, err := auth.HashPassword(os.Args[2])
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	repo, err := db.Open(ctx, cfg.DatabaseURL, cfg.Schema)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer repo.Close()

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer closeStore()
	sessions := session.NewManager(store, cfg.SessionTTL, cfg.SecureCookie)

	verifier, err := newVerifier(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize credentials: %v", err)
	}

	c := collector.NewCollector(repo, sessions)
	go c.Run(ctx, cfg.StatsInterval)

	router := api.NewRouter(&api.Server{
		Repo:         repo,
		Sessions:     sessions,
		Verifier:     verifier,
		Bridge:       location.NewBridge(cfg.LocationTimeout),
		Collector:    c,
		MasterKey:    cfg.MasterAPIKey,
		LoginLimiter: api.NewRateLimiter(cfg.LoginRateLimit, 5*time.Minute),
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.WithFields(log.Fields{
			"addr":   cfg.Addr,
			"schema": cfg.Schema.Name,
			"driver": repo.Driver(),
		}).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.RedisURL != "" {
		store, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using redis session store")
		return store, func() { store.Close() }, nil
	}
	store := session.NewMemoryStore(time.Minute)
	return store, store.Close, nil
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.AuthMode == config.AuthModeHashed {
		return auth.NewHashedVerifier(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.SharedPasswordHash)
	}
	log.Warn("AUTH_MODE=demo: using the built-in demo credentials, do not expose this instance")
	return auth.DemoVerifier(), nil
}
