package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetUserAgent() string
}

type API struct {
	file *File
}

var _ APIConfig = API{}

// GetBaseURL returns the StockPilot backend root without a trailing slash (e.g. "http://localhost:8000")
func (a API) GetBaseURL() string {
	return strings.TrimRight(lookup("STOCKPILOT_API_URL", a.file.API.BaseURL, "http://localhost:8000"), "/")
}

func (a API) GetRequestTimeout() time.Duration {
	return lookupDuration("STOCKPILOT_API_TIMEOUT", a.file.API.Timeout, 30*time.Second)
}

// GetRateLimit is requests per second; zero disables limiting.
func (a API) GetRateLimit() float64 {
	if raw := os.Getenv("STOCKPILOT_RATE_LIMIT"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return a.file.API.RateLimit
}

func (a API) GetRateBurst() int {
	def := a.file.API.RateBurst
	if def <= 0 {
		def = 10
	}
	return lookupInt("STOCKPILOT_RATE_BURST", nil, def)
}

func (a API) GetUserAgent() string {
	return lookup("STOCKPILOT_USER_AGENT", a.file.API.UserAgent, "stockpilot-go/1.0")
}
