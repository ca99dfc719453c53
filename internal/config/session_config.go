package config

import "time"

type SessionConfig interface {
	GetExpiryLeeway() time.Duration
	GetLoginPath() string
	GetCoalesceRefresh() bool
	GetSigningKey() string
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

// GetExpiryLeeway treats tokens as expired this long before their exp claim.
func (s Session) GetExpiryLeeway() time.Duration {
	return lookupDuration("STOCKPILOT_EXPIRY_LEEWAY", s.file.Session.ExpiryLeeway, 0)
}

func (s Session) GetLoginPath() string {
	return lookup("STOCKPILOT_LOGIN_PATH", s.file.Session.LoginPath, "/login")
}

func (s Session) GetCoalesceRefresh() bool {
	return lookupBool("STOCKPILOT_COALESCE_REFRESH", s.file.Session.CoalesceRefresh, true)
}

// GetSigningKey is the shared HS256 key; empty means claims are decoded without verification.
func (s Session) GetSigningKey() string {
	return lookup("STOCKPILOT_SIGNING_KEY", s.file.Session.SigningKey, "")
}
