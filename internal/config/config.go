package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
}

// New returns a Config backed by environment variables and defaults only.
func New() Config {
	return newMainConfig(nil)
}

// Load reads an optional YAML file. Environment variables still take
// precedence over values from the file; an empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
	}
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("[config Load] parse %s: %w", path, err)
	}
	return newMainConfig(f), nil
}

func newMainConfig(f *File) mainConfig {
	if f == nil {
		f = &File{}
	}
	return mainConfig{
		EnvVars: EnvVars{file: f},
		API:     API{file: f},
		Session: Session{file: f},
		Storage: Storage{file: f},
	}
}

// File mirrors the YAML config file layout.
type File struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	API struct {
		BaseURL   string  `yaml:"base_url"`
		Timeout   string  `yaml:"timeout"`
		RateLimit float64 `yaml:"rate_limit"`
		RateBurst int     `yaml:"rate_burst"`
		UserAgent string  `yaml:"user_agent"`
	} `yaml:"api"`

	Session struct {
		ExpiryLeeway    string `yaml:"expiry_leeway"`
		LoginPath       string `yaml:"login_path"`
		CoalesceRefresh *bool  `yaml:"coalesce_refresh"`
		SigningKey      string `yaml:"signing_key"`
	} `yaml:"session"`

	Storage struct {
		Kind          string `yaml:"kind"`
		Path          string `yaml:"path"`
		Passphrase    string `yaml:"passphrase"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       *int   `yaml:"redis_db"`
		RedisPrefix   string `yaml:"redis_prefix"`
	} `yaml:"storage"`
}
