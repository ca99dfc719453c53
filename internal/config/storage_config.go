package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type StorageConfig interface {
	GetStoreKind() string
	GetTokenFile() string
	GetTokenPassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Storage struct {
	file *File
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreKind() string {
	return strings.ToLower(lookup("STOCKPILOT_TOKEN_STORE", s.file.Storage.Kind, StoreFile))
}

func (s Storage) GetTokenFile() string {
	return lookup("STOCKPILOT_TOKEN_FILE", s.file.Storage.Path, defaultTokenFile())
}

// GetTokenPassphrase enables at-rest encryption of the token file when non-empty.
func (s Storage) GetTokenPassphrase() string {
	return lookup("STOCKPILOT_TOKEN_PASSPHRASE", s.file.Storage.Passphrase, "")
}

func (s Storage) GetRedisAddr() string {
	return lookup("STOCKPILOT_REDIS_ADDR", s.file.Storage.RedisAddr, "localhost:6379")
}

func (s Storage) GetRedisPassword() string {
	return lookup("STOCKPILOT_REDIS_PASSWORD", s.file.Storage.RedisPassword, "")
}

func (s Storage) GetRedisDB() int {
	return lookupInt("STOCKPILOT_REDIS_DB", s.file.Storage.RedisDB, 0)
}

func (s Storage) GetRedisPrefix() string {
	return lookup("STOCKPILOT_REDIS_PREFIX", s.file.Storage.RedisPrefix, "stockpilot")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "stockpilot-tokens.json")
	}
	return filepath.Join(dir, "stockpilot", "tokens.json")
}
