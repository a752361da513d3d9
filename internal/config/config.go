package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port                    string
	AppEnv                  string
	LogLevel                string
	AllowedOrigin           string
	DatabaseURL             string
	SQLitePath              string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	AuthSecret              string
	GatewayKeyHash          string
	AccessTokenTTLMinutes   int
	DialogTTLSeconds        int
	UnifyTTLSeconds         int
	PendingRetentionMinutes int
	DefaultCreditLimit      decimal.Decimal
	OldDebtDays             int
	CommandPrefix           string
	Timezone                string
	OutboundWebhookURL      string
	OutboundWebhookToken    string
	ConversationLockSeconds int
}

// Load reads the process environment, plus an optional .env file in the
// working directory. Invalid numbers fall back to their defaults.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	creditLimit, err := decimal.NewFromString(getString(v, "DEFAULT_CREDIT_LIMIT", "200"))
	if err != nil || creditLimit.IsNegative() {
		creditLimit = decimal.NewFromInt(200)
	}

	prefix := strings.TrimSpace(getString(v, "COMMAND_PREFIX", "."))
	if prefix == "" {
		prefix = "."
	}

	return Config{
		Port:                    getString(v, "PORT", "8080"),
		AppEnv:                  getString(v, "APP_ENV", "development"),
		LogLevel:                getString(v, "LOG_LEVEL", "info"),
		AllowedOrigin:           getString(v, "ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             getString(v, "DATABASE_URL", ""),
		SQLitePath:              getString(v, "SQLITE_PATH", ""),
		RedisAddr:               getString(v, "REDIS_ADDR", ""),
		RedisPassword:           getString(v, "REDIS_PASSWORD", ""),
		RedisDB:                 getInt(v, "REDIS_DB", 0, 0),
		AuthSecret:              strings.TrimSpace(getString(v, "AUTH_SECRET", "")),
		GatewayKeyHash:          strings.TrimSpace(getString(v, "GATEWAY_KEY_HASH", "")),
		AccessTokenTTLMinutes:   getInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		DialogTTLSeconds:        getInt(v, "DIALOG_TTL_SECONDS", 120, 1),
		UnifyTTLSeconds:         getInt(v, "UNIFY_TTL_SECONDS", 300, 1),
		PendingRetentionMinutes: getInt(v, "PENDING_RETENTION_MINUTES", 60, 1),
		DefaultCreditLimit:      creditLimit,
		OldDebtDays:             getInt(v, "OLD_DEBT_DAYS", 30, 1),
		CommandPrefix:           prefix,
		Timezone:                getString(v, "TIMEZONE", "America/Sao_Paulo"),
		OutboundWebhookURL:      getString(v, "OUTBOUND_WEBHOOK_URL", ""),
		OutboundWebhookToken:    strings.TrimSpace(getString(v, "OUTBOUND_WEBHOOK_TOKEN", "")),
		ConversationLockSeconds: getInt(v, "CONVERSATION_LOCK_SECONDS", 30, 1),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) DialogTTL() time.Duration {
	return time.Duration(c.DialogTTLSeconds) * time.Second
}

func (c Config) UnifyTTL() time.Duration {
	return time.Duration(c.UnifyTTLSeconds) * time.Second
}

func (c Config) PendingRetention() time.Duration {
	return time.Duration(c.PendingRetentionMinutes) * time.Minute
}

func (c Config) OldDebtAge() time.Duration {
	return time.Duration(c.OldDebtDays) * 24 * time.Hour
}

func (c Config) ConversationLockTTL() time.Duration {
	return time.Duration(c.ConversationLockSeconds) * time.Second
}

// Location resolves Timezone, using UTC when the zone is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getString(v *viper.Viper, key string, fallback string) string {
	if !v.IsSet(key) {
		return fallback
	}
	val := v.GetString(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(v *viper.Viper, key string, fallback int, minVal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getString(v, key, strconv.Itoa(fallback))))
	if err != nil || n < minVal {
		return fallback
	}
	return n
}
