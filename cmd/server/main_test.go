package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"fiado/backend/internal/config"
	"fiado/backend/internal/store/memory"
	sqlitestore "fiado/backend/internal/store/sqlite"
)

const (
	strongSecret = "0123456789abcdef0123456789abcdef"
	keyHash      = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z6G/sX0F0p3Z1sQbY0p3rZ5S"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":    {AuthSecret: "short", GatewayKeyHash: keyHash},
		"plain key":       {AuthSecret: strongSecret, GatewayKeyHash: "gateway-key"},
		"missing webhook": {AuthSecret: strongSecret, GatewayKeyHash: keyHash, AppEnv: "production"},
		"http in prod":    {AuthSecret: strongSecret, GatewayKeyHash: keyHash, AppEnv: "production", OutboundWebhookURL: "http://gw.example/send"},
		"malformed hook":  {AuthSecret: strongSecret, GatewayKeyHash: keyHash, OutboundWebhookURL: "not a url"},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected configuration to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, GatewayKeyHash: keyHash})
	if err != nil {
		t.Fatalf("expected development config to pass, got %v", err)
	}
	err = validateSecurityConfig(config.Config{
		AuthSecret: strongSecret, GatewayKeyHash: keyHash,
		AppEnv: "production", OutboundWebhookURL: "https://gw.example/send",
	})
	if err != nil {
		t.Fatalf("expected production config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackByConfig(t *testing.T) {
	ctx := context.Background()

	repo, closeFn, err := openRepository(ctx, config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok || closeFn != nil {
		t.Fatalf("expected in-memory repository without closer, got %T", repo)
	}

	repo, closeFn, err = openRepository(ctx, config.Config{SQLitePath: filepath.Join(t.TempDir(), "fiado.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })
	if _, ok := repo.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite repository, got %T", repo)
	}
}
