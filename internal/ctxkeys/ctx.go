package ctxkeys

import (
	"context"

	"github.com/templui/piggybank/internal/config"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	WalletKey    contextKey = "wallet"
	ConfigKey    contextKey = "config"
	RequestIDKey contextKey = "request_id"
)

// Wallet returns the normalized address of the authenticated wallet, "" when anonymous.
func Wallet(ctx context.Context) string {
	wallet, _ := ctx.Value(WalletKey).(string)
	return wallet
}

func WithWallet(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, WalletKey, address)
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
