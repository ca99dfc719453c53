package tokenstore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/stockpilot/internal/config"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"github.com/jrsteele09/stockpilot/token"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = apperrors.ErrNotFound

// Store is the durable key-value slot holding the token pair. Writes are
// last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Open builds the store selected by cfg. Stores holding connections also
// implement io.Closer.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.GetStoreKind() {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		return NewFile(cfg.GetTokenFile(), cfg.GetTokenPassphrase()), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		return NewRedis(client, cfg.GetRedisPrefix()), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnsupported, "token store %q", cfg.GetStoreKind())
	}
}

// LoadPair reads both tokens; absent keys come back empty.
func LoadPair(ctx context.Context, s Store) (token.Pair, error) {
	access, err := getOptional(ctx, s, token.AccessTokenKey)
	if err != nil {
		return token.Pair{}, err
	}
	refresh, err := getOptional(ctx, s, token.RefreshTokenKey)
	if err != nil {
		return token.Pair{}, err
	}
	return token.Pair{Access: access, Refresh: refresh}, nil
}

// SavePair writes both tokens (two writes, access first).
func SavePair(ctx context.Context, s Store, p token.Pair) error {
	if err := s.Set(ctx, token.AccessTokenKey, p.Access); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := s.Set(ctx, token.RefreshTokenKey, p.Refresh); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ClearPair removes both tokens.
func ClearPair(ctx context.Context, s Store) error {
	return s.Delete(ctx, token.AccessTokenKey, token.RefreshTokenKey)
}

func getOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if apperrors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return v, nil
}
