package token

import (
	"time"

	"golang.org/x/oauth2"
)

// Storage keys for the persisted token pair.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Pair is the bearer token pair issued by /auth/login/, /auth/register/ and
// (partially) /auth/token/refresh/.
type Pair struct {
	Access  string
	Refresh string
}

func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// OAuth2 converts the pair for use with golang.org/x/oauth2 based code.
func (p Pair) OAuth2(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
}
