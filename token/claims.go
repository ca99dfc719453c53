package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// UserID accepts both numeric and string user_id claims.
type UserID string

func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Claims is the typed payload of a StockPilot access token.
type Claims struct {
	UserID    UserID `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type,omitempty"`
	jwtlib.RegisteredClaims
}

// Validate fails closed when any claim the session depends on is absent.
func (c *Claims) Validate() error {
	var missing []string
	if strings.TrimSpace(string(c.UserID)) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if c.RegisteredClaims.ExpiresAt == nil {
		missing = append(missing, "exp")
	}
	if len(missing) > 0 {
		return apperrors.Wrapf(apperrors.ErrMissingClaims, "missing %s", strings.Join(missing, ", "))
	}
	if c.TokenType != "" && c.TokenType != "access" {
		return apperrors.Wrapf(apperrors.ErrInvalidToken, "token_type %q is not an access token", c.TokenType)
	}
	return nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Decoder turns raw access tokens into validated Claims.
type Decoder struct {
	signingKey []byte
	leeway     time.Duration
}

type Option func(*Decoder)

// WithSigningKey verifies HS256 signatures with the shared key instead of
// decoding the payload blindly.
func WithSigningKey(key []byte) Option {
	return func(d *Decoder) {
		d.signingKey = key
	}
}

// WithLeeway makes Expired report true this long before exp.
func WithLeeway(leeway time.Duration) Option {
	return func(d *Decoder) {
		d.leeway = leeway
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// Decode decodes raw with the default (unverified) decoder.
func Decode(raw string) (*Claims, error) {
	return defaultDecoder.Decode(raw)
}

// Decode parses raw and validates its claims. Expiry is not enforced here so
// callers can tell an expired token from a malformed one; use Expired.
func (d *Decoder) Decode(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.ErrNoAccessToken
	}

	claims := &Claims{}
	if len(d.signingKey) == 0 {
		if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "decode: %v", err)
		}
	} else {
		parsed, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
			return d.signingKey, nil
		}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithoutClaimsValidation())
		if err != nil || !parsed.Valid {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "verify: %v", err)
		}
	}

	if err := claims.Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether the claims' exp is at or before now (minus leeway).
func (d *Decoder) Expired(c *Claims) bool {
	if c == nil || c.RegisteredClaims.ExpiresAt == nil {
		return true
	}
	return !NowTimeFunc().Add(d.leeway).Before(c.Expiry())
}
