package session

import (
	"context"

	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"golang.org/x/oauth2"
)

// TokenSource exposes the session to golang.org/x/oauth2 based code, such as
// oauth2.NewClient. It follows the same rules as BearerToken: an expired
// token ends the session instead of being refreshed.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.m.BearerToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	snap := ts.m.Snapshot()
	pair := snap.Pair()
	return pair.OAuth2(snap.ExpiresAt), nil
}
