package errors

import (
	"errors"
	"fmt"
)

// Common error types for the StockPilot client
var (
	// Token errors
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingClaims  = errors.New("token missing required claims")
	ErrTokenExpired   = errors.New("token expired")
	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")

	// Storage errors
	ErrNotFound        = errors.New("not found")
	ErrStoreCorrupted  = errors.New("token store corrupted")
	ErrWrongPassphrase = errors.New("wrong token store passphrase")

	// CSRF errors
	ErrNoCSRFToken = errors.New("csrf token unavailable")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
