package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fiado/backend/internal/config"
	"fiado/backend/internal/gate"
	"fiado/backend/internal/httpapi"
	"fiado/backend/internal/logger"
	"fiado/backend/internal/pending"
	"fiado/backend/internal/service"
	"fiado/backend/internal/store"
	"fiado/backend/internal/store/memory"
	pgstore "fiado/backend/internal/store/postgres"
	sqlitestore "fiado/backend/internal/store/sqlite"
	"fiado/backend/internal/transport"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	hashKey := flag.String("hash-gateway-key", "", "print the GATEWAY_KEY_HASH value for a key and exit")
	flag.Parse()
	if *hashKey != "" {
		hash, err := httpapi.HashGatewayKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	checks := make([]pinger, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("repository unavailable")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}
	if p, ok := repo.(pinger); ok {
		checks = append(checks, p)
	}

	var (
		pendingOps    pending.Store
		conversations gate.Gate
	)
	if cfg.RedisAddr != "" {
		redisStore := pending.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PendingRetention())
		if err := redisStore.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("redis unavailable and REDIS_ADDR is set; refusing to start with process-local dialogs")
		}
		pendingOps = redisStore
		conversations = gate.NewRedisGate(redisStore.Client(), cfg.ConversationLockTTL(), log)
		closers = append(closers, redisStore.Close)
		checks = append(checks, redisStore)
		log.Info().Str("addr", cfg.RedisAddr).Msg("pending store: redis")
	} else {
		pendingOps = pending.NewMemoryStore()
		conversations = gate.NewLocalGate()
		log.Info().Msg("pending store: in-memory")
	}

	var sender transport.Sender
	if cfg.OutboundWebhookURL != "" {
		sender = transport.NewWebhookSender(cfg.OutboundWebhookURL, cfg.OutboundWebhookToken)
		log.Info().Msg("transport: webhook")
	} else {
		sender = transport.NewLogSender(log)
		log.Info().Msg("transport: log only")
	}

	svc, err := service.New(repo, pendingOps, sender, service.Options{
		CommandPrefix:      cfg.CommandPrefix,
		DialogTTL:          cfg.DialogTTL(),
		UnifyTTL:           cfg.UnifyTTL(),
		DefaultCreditLimit: cfg.DefaultCreditLimit,
		OldDebtAge:         cfg.OldDebtAge(),
		Location:           cfg.Location(),
		Logger:             log.With().Str("component", "service").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("service setup failed")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.GatewayKeyHash)
	api := httpapi.New(svc, conversations, auth, cfg.AllowedOrigin,
		httpapi.WithLogger(log.With().Str("component", "http").Logger()),
		httpapi.WithHealthCheck(func(ctx context.Context) error {
			for _, check := range checks {
				if err := check.Ping(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
	)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.ConversationLockTTL() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("fiado backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// openRepository prefers Postgres, then SQLite, then memory. A configured
// backend that fails is fatal rather than silently replaced.
func openRepository(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		log.Info().Msg("repository: postgres")
		return pg, pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("repository: sqlite")
		return lite, lite.Close, nil
	default:
		log.Warn().Msg("repository: in-memory, data is lost on restart")
		return memory.New(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !httpapi.IsKeyHash(cfg.GatewayKeyHash) {
		return fmt.Errorf("GATEWAY_KEY_HASH must be a bcrypt hash (generate one with -hash-gateway-key)")
	}
	if cfg.OutboundWebhookURL != "" {
		u, err := url.Parse(cfg.OutboundWebhookURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("OUTBOUND_WEBHOOK_URL is not a valid URL")
		}
		if cfg.AppEnv == "production" && u.Scheme != "https" {
			return fmt.Errorf("OUTBOUND_WEBHOOK_URL must use https in production")
		}
	} else if cfg.AppEnv == "production" {
		return fmt.Errorf("OUTBOUND_WEBHOOK_URL is required in production")
	}
	return nil
}
