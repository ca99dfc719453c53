package backendfake

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// MintAccessToken signs an HS256 access token carrying user_id, username and
// exp, shaped like the tokens the real backend issues.
func MintAccessToken(secret []byte, userID int, username string, exp time.Time) (string, error) {
	return mintAccessToken(secret, userID, username, exp, 0)
}

// mintAccessToken stamps gen so RevokeAccessTokens can invalidate every
// token issued before it was called.
func mintAccessToken(secret []byte, userID int, username string, exp time.Time, gen int) (string, error) {
	return mint(secret, jwt.MapClaims{
		"token_type": tokenTypeAccess,
		"user_id":    userID,
		"username":   username,
		"exp":        exp.Unix(),
		"iat":        time.Now().Unix(),
		"jti":        uuid.NewString(),
		"gen":        gen,
	})
}

func mintRefreshToken(secret []byte, userID int, username string, exp time.Time) (string, error) {
	return mint(secret, jwt.MapClaims{
		"token_type": tokenTypeRefresh,
		"user_id":    userID,
		"username":   username,
		"exp":        exp.Unix(),
		"iat":        time.Now().Unix(),
		"jti":        uuid.NewString(),
	})
}

func mint(secret []byte, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("[backendfake mint] sign: %w", err)
	}
	return signed, nil
}

type parsedToken struct {
	userID    int
	username  string
	tokenType string
	jti       string
	exp       time.Time
	gen       int
}

// verify checks the signature, expiry and token type of raw.
func verify(secret []byte, raw, wantType string) (*parsedToken, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errors.New("Token is invalid or expired")
	}

	p := &parsedToken{}
	p.tokenType, _ = claims["token_type"].(string)
	if p.tokenType != wantType {
		return nil, errors.New("Token has wrong type")
	}
	p.username, _ = claims["username"].(string)
	p.jti, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.exp = exp.Time
	}
	if id, ok := claims["user_id"].(float64); ok {
		p.userID = int(id)
	}
	if gen, ok := claims["gen"].(float64); ok {
		p.gen = int(gen)
	}
	return p, nil
}
