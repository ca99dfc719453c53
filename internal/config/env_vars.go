package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/stockpilot/internal/utils"
)

const (
	appNameVar  = "STOCKPILOT_APP_NAME"
	envVar      = "ENV"
	logLevelVar = "STOCKPILOT_LOG_LEVEL"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return lookup(appNameVar, e.file.AppName, "StockPilot")
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(lookup(envVar, e.file.Env, "DEV"))
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(lookup(logLevelVar, e.file.LogLevel, "info"))
}

// lookup resolves a setting: environment first, then the config file, then the default.
func lookup(envVar, fileValue, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

func lookupDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	raw := lookup(envVar, fileValue, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

func lookupInt(envVar string, fileValue *int, defaultValue int) int {
	if raw := os.Getenv(envVar); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return utils.ValueOr(fileValue, defaultValue)
}

func lookupBool(envVar string, fileValue *bool, defaultValue bool) bool {
	if raw := os.Getenv(envVar); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return utils.ValueOr(fileValue, defaultValue)
}
