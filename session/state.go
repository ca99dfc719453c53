package session

import (
	"time"

	"github.com/jrsteele09/stockpilot/token"
)

// State is the position of the session in the token-refresh state machine.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// User is derived from the access token claims, with the email filled in when
// login or signup returned it.
type User struct {
	ID       string
	Username string
	Email    string
}

// Snapshot is an immutable copy of the session taken under the manager's lock.
type Snapshot struct {
	State        State
	AccessToken  string
	RefreshToken string
	User         *User
	ExpiresAt    time.Time
}

// IsAuthenticated reports whether the snapshot held an unexpired access token
// at now.
func (s Snapshot) IsAuthenticated(now time.Time) bool {
	return s.State != Unauthenticated && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

func (s Snapshot) Pair() token.Pair {
	return token.Pair{Access: s.AccessToken, Refresh: s.RefreshToken}
}

// Result is the user-displayable outcome of the password endpoints.
type Result struct {
	Success bool
	Message string
}

// Navigator redirects the user when the session ends involuntarily.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) {
	f(path)
}
