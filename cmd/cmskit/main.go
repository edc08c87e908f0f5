// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the cmskit server.
// It loads configuration, builds the connector and the revision service,
// sets up routing, and starts the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cmskit/internal/cache"
	"cmskit/internal/cms"
	"cmskit/internal/config"
	"cmskit/internal/connector"
	"cmskit/internal/connector/memory"
	"cmskit/internal/database"
	"cmskit/internal/handlers"
	"cmskit/internal/middleware"
	"cmskit/internal/password"
	"cmskit/internal/router"
	"cmskit/internal/session"
	"cmskit/internal/storage"
	"cmskit/internal/store"
	"cmskit/internal/unlock"
)

// Unlock attempts allowed per client per window.
const (
	unlockAttempts = 10
	unlockWindow   = time.Minute
)

func main() {
	loaded, dotenvErr := config.LoadDotEnv(".")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runToken(cfg, logger, os.Args[2:]))
	}

	if dotenvErr != nil {
		logger.Warn("failed to load .env files", "error", dotenvErr)
	}
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"connector", cfg.Connector,
		"dotenv", loaded,
	)

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.Error("failed to load content policy", "file", cfg.PolicyFile, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	conn, db, err := openConnector(cfg, logger)
	if err != nil {
		logger.Error("failed to open connector", "connector", cfg.Connector, "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// After-write hooks: cache invalidation and the deleted-item archive.
	var hooks []cms.Hook
	var payloads handlers.PayloadCache
	var flusher handlers.CacheFlusher
	var archive handlers.ArchiveReader
	var resolvers middleware.ChainResolver
	if cfg.ValkeyHost != "" {
		client, err := connectValkey(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		pc := cache.NewPayloadCache(client, cfg.PublicCacheTTL, logger)
		payloads, flusher = pc, pc
		hooks = append(hooks, pc.InvalidationHook())
		resolvers = append(resolvers, session.NewStore(client, cfg.SessionTTL))
	} else {
		logger.Warn("valkey not configured, public payload cache and bearer sessions disabled")
	}
	if cfg.TrustActorHeaders {
		resolvers = append(resolvers, middleware.HeaderResolver{})
	}
	if len(resolvers) == 0 {
		logger.Warn("no actor resolver configured, admin API rejects every request")
	}

	archiver, err := storage.New(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize S3 archive", "error", err)
		os.Exit(1)
	}
	if archiver != nil {
		archive = archiver
		hooks = append(hooks, archiver.Hook())
		logger.Info("deleted-item archive enabled", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		logger.Warn("s3 not configured, deleted items are not archived")
	}

	secret, err := unlockSecret(cfg)
	if err != nil {
		logger.Error("failed to prepare unlock secret", "error", err)
		os.Exit(1)
	}

	svc := cms.New(conn, cms.Options{
		Logger:       logger,
		OnAfterWrite: cms.Hooks(hooks...),
		LockTTL:      cfg.LockTTL,
		Policy:       &policy,
		Hasher:       password.Bcrypt{},
		Tokens:       unlock.NewIssuer(secret, cfg.UnlockTTL),
	})

	if cfg.Seed {
		if err := database.Seed(ctx, svc, logger); err != nil {
			logger.Error("failed to seed content", "error", err)
			os.Exit(1)
		}
	}

	limiter := middleware.NewRateLimiter(unlockAttempts, unlockWindow, nil)
	defer limiter.Stop()

	authz := middleware.DefaultAuthorizer()
	r := router.New(router.Deps{
		Admin:         handlers.NewAdmin(svc, authz, logger),
		Public:        handlers.NewPublic(svc, payloads, logger),
		Maintenance:   handlers.NewMaintenance(flusher, archive, logger),
		Resolver:      resolvers,
		Authz:         authz,
		UnlockLimiter: limiter,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		logger.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newLogger returns a text handler in development and JSON elsewhere.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func connectValkey(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	return cache.ConnectValkey(ctx, cache.ValkeyOptions{
		Host:     cfg.ValkeyHost,
		Port:     cfg.ValkeyPort,
		Password: cfg.ValkeyPassword,
		DB:       cfg.ValkeyDB,
	}, logger)
}

// runToken issues an admin bearer session:
//
//	cmskit token -actor alice -roles editor,admin
func runToken(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	actor := fs.String("actor", "", "actor uid the token authenticates")
	roles := fs.String("roles", "editor", "comma separated roles")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.ValkeyHost == "" {
		logger.Error("bearer sessions need VALKEY_HOST")
		return 1
	}

	ctx := context.Background()
	client, err := connectValkey(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to valkey", "error", err)
		return 1
	}
	defer client.Close()

	var list []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			list = append(list, r)
		}
	}
	token, err := session.NewStore(client, cfg.SessionTTL).Issue(ctx, *actor, list)
	if err != nil {
		logger.Error("failed to issue token", "error", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

// openConnector builds the configured connector. The returned *sql.DB is
// nil for the memory connector.
func openConnector(cfg *config.Config, logger *slog.Logger) (connector.Connector, *sql.DB, error) {
	if cfg.Connector == config.ConnectorMemory {
		logger.Warn("using in-memory connector, content is lost on restart")
		return memory.New(), nil, nil
	}

	db, err := database.Connect(cfg.DSN(), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	version, err := database.SchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("database ready", "host", cfg.DBHost, "name", cfg.DBName, "schema_version", version)
	return store.New(db), db, nil
}

// unlockSecret returns the configured signing key. Development falls back
// to a random per-process key, which invalidates tokens on restart.
func unlockSecret(cfg *config.Config) ([]byte, error) {
	if cfg.UnlockSecret != "" {
		return []byte(cfg.UnlockSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
