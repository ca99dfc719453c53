package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/jrsteele09/stockpilot/authclient"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/jrsteele09/stockpilot/internal/config"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"github.com/jrsteele09/stockpilot/token"
	"github.com/jrsteele09/stockpilot/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	ForgotPasswordSuccess = "Password reset link has been sent to your email!"
	ResetPasswordSuccess  = "Your password has been reset. You can now log in."

	msgInvalidToken = "The server returned an invalid token."
)

// Config is the part of the configuration the session and its API client read.
type Config interface {
	config.SessionConfig
	config.APIConfig
}

// Manager owns the access/refresh token pair and is the only thing that
// mutates it. It is safe for concurrent use.
type Manager struct {
	store      tokenstore.Store
	api        *backend.Client
	decoder    *token.Decoder
	navigator  Navigator
	loginPath  string
	coalesce   bool
	client     *authclient.Client
	refreshing singleflight.Group

	lock sync.RWMutex
	// settled is signalled whenever a refresh finishes or the session resets.
	settled *sync.Cond
	// inflight counts refreshes that have not finished yet.
	inflight int
	pair     token.Pair
	claims   *token.Claims
	user     *User
	state    State
	// generation changes on every login and logout so an in-flight refresh
	// can tell that the session it started from is gone.
	generation uint64
}

type Option func(*managerOptions)

type managerOptions struct {
	navigator     Navigator
	decoder       *token.Decoder
	clientOptions []authclient.Option
}

func WithNavigator(n Navigator) Option {
	return func(o *managerOptions) {
		o.navigator = n
	}
}

// WithDecoder replaces the decoder built from the session config.
func WithDecoder(d *token.Decoder) Option {
	return func(o *managerOptions) {
		o.decoder = d
	}
}

// WithClientOptions configures the authenticated client returned by Client.
func WithClientOptions(opts ...authclient.Option) Option {
	return func(o *managerOptions) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

// New builds an unauthenticated manager. Call Init to load persisted tokens.
func New(cfg Config, store tokenstore.Store, api *backend.Client, opts ...Option) *Manager {
	o := &managerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.decoder == nil {
		decoderOpts := []token.Option{token.WithLeeway(cfg.GetExpiryLeeway())}
		if key := cfg.GetSigningKey(); key != "" {
			decoderOpts = append(decoderOpts, token.WithSigningKey([]byte(key)))
		}
		o.decoder = token.NewDecoder(decoderOpts...)
	}
	if o.navigator == nil {
		o.navigator = NavigatorFunc(func(path string) {
			log.Info().Str("path", path).Msg("session ended, login required")
		})
	}

	m := &Manager{
		store:     store,
		api:       api,
		decoder:   o.decoder,
		navigator: o.navigator,
		loginPath: cfg.GetLoginPath(),
		coalesce:  cfg.GetCoalesceRefresh(),
		state:     Unauthenticated,
	}
	m.settled = sync.NewCond(&m.lock)
	m.client = authclient.New(cfg, api, m, o.clientOptions...)
	return m
}

// Init loads the persisted token pair. A missing, undecodable or expired
// access token leaves the session logged out with both keys cleared; no
// network call is made.
func (m *Manager) Init(ctx context.Context) error {
	pair, err := tokenstore.LoadPair(ctx, m.store)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrStoreCorrupted) {
			log.Warn().Err(err).Msg("discarding unreadable token store")
			return m.Logout(ctx)
		}
		return apperrors.Wrapf(err, "[session Init] load tokens")
	}
	if pair.Access == "" {
		if pair.Refresh != "" {
			return m.Logout(ctx)
		}
		m.reset()
		return nil
	}

	claims, err := m.decoder.Decode(pair.Access)
	if err != nil {
		log.Info().Err(err).Msg("stored access token is invalid, logging out")
		return m.Logout(ctx)
	}
	if m.decoder.Expired(claims) {
		log.Info().Time("exp", claims.Expiry()).Msg("stored access token has expired, logging out")
		return m.Logout(ctx)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.pair = pair
	m.claims = claims
	m.user = userFromClaims(claims, "")
	m.state = Authenticated
	return nil
}

// Login exchanges credentials for a token pair and establishes the session.
// On failure the session stays unauthenticated and the error carries the
// backend's message, or "Invalid credentials".
func (m *Manager) Login(ctx context.Context, username, password string) error {
	resp, err := m.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return m.establish(ctx, resp)
}

// Signup registers the account and, like Login, establishes the session
// straight away.
func (m *Manager) Signup(ctx context.Context, username, email, password, confirmPassword string) error {
	resp, err := m.api.Register(ctx, backend.RegisterRequest{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		return err
	}
	return m.establish(ctx, resp)
}

func (m *Manager) establish(ctx context.Context, resp *backend.TokenResponse) error {
	claims, err := m.decoder.Decode(resp.Access)
	if err != nil {
		return &apierror.Error{Kind: apierror.KindCredentials, Message: msgInvalidToken, Err: err}
	}
	pair := token.Pair{Access: resp.Access, Refresh: resp.Refresh}
	if err := tokenstore.SavePair(ctx, m.store, pair); err != nil {
		return apperrors.Wrapf(err, "[session establish] persist tokens")
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.pair = pair
	m.claims = claims
	email := ""
	if resp.User != nil {
		email = resp.User.Email
	}
	m.user = userFromClaims(claims, email)
	m.state = Authenticated
	m.generation++
	log.Info().Str("username", m.user.Username).Msg("logged in")
	return nil
}

// ForgotPassword asks the backend to email a reset link. It never touches
// the session.
func (m *Manager) ForgotPassword(ctx context.Context, email string) Result {
	if _, err := m.api.ForgotPassword(ctx, email); err != nil {
		return Result{Success: false, Message: errorMessage(err, backend.DefaultForgotError)}
	}
	return Result{Success: true, Message: ForgotPasswordSuccess}
}

// ResetPassword completes a reset started by ForgotPassword. It never touches
// the session.
func (m *Manager) ResetPassword(ctx context.Context, uid, resetToken, password, confirmPassword string) Result {
	resp, err := m.api.ResetPassword(ctx, uid, resetToken, backend.ResetPasswordRequest{
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		return Result{Success: false, Message: errorMessage(err, backend.DefaultResetError)}
	}
	msg := ResetPasswordSuccess
	if resp.Message != "" {
		msg = resp.Message
	}
	return Result{Success: true, Message: msg}
}

// Logout clears both stored tokens and the in-memory session. The backend is
// not called. The in-memory state is reset even when the store fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.reset()
	if err := tokenstore.ClearPair(ctx, m.store); err != nil {
		log.Err(err).Msg("failed to clear stored tokens")
		return apperrors.Wrapf(err, "[session Logout] clear tokens")
	}
	return nil
}

func (m *Manager) reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.pair = token.Pair{}
	m.claims = nil
	m.user = nil
	m.state = Unauthenticated
	m.generation++
	m.settled.Broadcast()
}

// expire ends the session after a failed refresh and sends the user to the
// login path.
func (m *Manager) expire(ctx context.Context, cause error) {
	log.Info().Err(cause).Msg("session expired")
	_ = m.Logout(ctx)
	m.navigator.Navigate(m.loginPath)
}

// Refresh trades the refresh token for a new access token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.RefreshRejected(ctx, "")
}

// RefreshRejected refreshes after rejected was answered with a 401. When the
// session already holds a different unexpired access token, another caller
// has refreshed in the meantime and that token is returned without a network
// call.
func (m *Manager) RefreshRejected(ctx context.Context, rejected string) (string, error) {
	if rejected != "" {
		m.lock.RLock()
		current, claims := m.pair.Access, m.claims
		m.lock.RUnlock()
		if current != "" && current != rejected && !m.decoder.Expired(claims) {
			return current, nil
		}
	}

	if !m.coalesce {
		return m.refresh(ctx)
	}
	// The shared refresh outlives any one caller; each caller stops waiting
	// when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := m.refreshing.DoChan("refresh", func() (interface{}, error) {
		return m.refresh(shared)
	})
	select {
	case res := <-ch:
		if res.Shared {
			log.Debug().Msg("joined in-flight token refresh")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", apierror.Canceled(ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.lock.Lock()
	refreshToken := m.pair.Refresh
	startAccess := m.pair.Access
	generation := m.generation
	previous := m.state
	if refreshToken != "" {
		m.state = Refreshing
		m.inflight++
	}
	m.lock.Unlock()

	if refreshToken == "" {
		m.expire(ctx, apperrors.ErrNoRefreshToken)
		return "", apierror.SessionExpired(0, apperrors.ErrNoRefreshToken)
	}
	finished := false
	finish := func() {
		if !finished {
			finished = true
			m.lock.Lock()
			m.inflight--
			m.settled.Broadcast()
			m.lock.Unlock()
		}
	}
	defer finish()

	resp, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		if apierror.Is(err, apierror.KindConnectivity) || apierror.Is(err, apierror.KindCanceled) {
			m.restoreState(generation, previous)
			return "", err
		}
		finish()
		if m.superseded(generation, startAccess) {
			return m.currentAfterRace()
		}
		m.expire(ctx, err)
		return "", apierror.SessionExpired(statusOf(err), apperrors.Wrapf(apperrors.ErrRefreshFailed, "%v", err))
	}

	claims, err := m.decoder.Decode(resp.Access)
	if err != nil {
		finish()
		if m.superseded(generation, startAccess) {
			return m.currentAfterRace()
		}
		m.expire(ctx, err)
		return "", apierror.SessionExpired(0, err)
	}

	pair := token.Pair{Access: resp.Access, Refresh: refreshToken}
	if resp.Refresh != "" {
		pair.Refresh = resp.Refresh
	}

	m.lock.Lock()
	if m.generation != generation {
		m.lock.Unlock()
		return m.currentAfterRace()
	}
	m.pair = pair
	m.claims = claims
	email := ""
	if m.user != nil && m.user.Username == claims.Username {
		email = m.user.Email
	}
	m.user = userFromClaims(claims, email)
	m.state = Authenticated
	m.lock.Unlock()

	if err := tokenstore.SavePair(ctx, m.store, pair); err != nil {
		log.Err(err).Msg("refreshed tokens could not be persisted")
	}
	log.Debug().Bool("rotated", resp.Refresh != "").Msg("access token refreshed")
	return pair.Access, nil
}

func (m *Manager) restoreState(generation uint64, previous State) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.generation == generation && m.state == Refreshing {
		m.state = previous
	}
}

// superseded waits for any other refresh still in flight and reports whether
// the session this refresh started from has since been replaced, either by a
// login or logout or by another refresh that rotated the pair first.
func (m *Manager) superseded(generation uint64, startAccess string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	for m.inflight > 0 && m.generation == generation && m.pair.Access == startAccess {
		m.settled.Wait()
	}
	return m.generation != generation || m.pair.Access != startAccess
}

// currentAfterRace answers a refresh whose session was replaced while it was
// in flight.
func (m *Manager) currentAfterRace() (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.state != Unauthenticated && m.pair.Access != "" && !m.decoder.Expired(m.claims) {
		return m.pair.Access, nil
	}
	return "", apierror.SessionExpired(0, apperrors.ErrNotAuthenticated)
}

// BearerToken returns the access token to attach to an API call, or "" when
// logged out. An expired token logs the session out and fails without any
// network call.
func (m *Manager) BearerToken(ctx context.Context) (string, error) {
	m.lock.RLock()
	access, claims := m.pair.Access, m.claims
	m.lock.RUnlock()

	if access == "" {
		return "", nil
	}
	if m.decoder.Expired(claims) {
		m.expire(ctx, apperrors.ErrTokenExpired)
		return "", apierror.SessionExpired(0, apperrors.ErrTokenExpired)
	}
	return access, nil
}

// Client returns the authenticated API client bound to this session.
func (m *Manager) Client() *authclient.Client {
	return m.client
}

func (m *Manager) Snapshot() Snapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s := Snapshot{
		State:        m.state,
		AccessToken:  m.pair.Access,
		RefreshToken: m.pair.Refresh,
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	if m.claims != nil {
		s.ExpiresAt = m.claims.Expiry()
	}
	return s
}

// IsAuthenticated reports whether an access token is held and not expired.
func (m *Manager) IsAuthenticated() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state != Unauthenticated && m.pair.Access != "" && !m.decoder.Expired(m.claims)
}

func (m *Manager) CurrentUser() *User {
	return m.Snapshot().User
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

func (m *Manager) AccessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.pair.Access
}

func userFromClaims(claims *token.Claims, email string) *User {
	return &User{ID: string(claims.UserID), Username: claims.Username, Email: email}
}

func statusOf(err error) int {
	var apiErr *apierror.Error
	if apperrors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func errorMessage(err error, fallback string) string {
	var apiErr *apierror.Error
	if apperrors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
