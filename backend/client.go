package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/jrsteele09/stockpilot/internal/config"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLoginError  = "Invalid credentials"
	DefaultSignupError = "Signup failed"
	DefaultForgotError = "Failed to send reset link"
	DefaultResetError  = "Failed to reset password"
)

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 10 << 20

// Client calls the unauthenticated /auth/* endpoints. It never attaches
// bearer tokens and never retries.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string

	csrfMu    sync.Mutex
	csrfToken string
}

// NewHTTPClient returns an http.Client with a cookie jar (for the csrftoken
// cookie) and the configured timeout. Share it between Client and the
// authenticated client so both see the same cookies.
func NewHTTPClient(cfg config.APIConfig) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: cfg.GetRequestTimeout(),
	}
}

func New(cfg config.APIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}
	return &Client{
		baseURL:   cfg.GetBaseURL(),
		http:      httpClient,
		userAgent: cfg.GetUserAgent(),
	}
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the backend base URL.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// UserAgent is sent on every request made by this module.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// CSRFToken fetches a fresh anti-forgery token from /auth/csrf/.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var out CSRFResponse
	status, body, err := c.do(ctx, http.MethodGet, RouteCSRF, nil, &out, false)
	if err != nil {
		return "", err
	}
	if status/100 != 2 {
		return "", apierror.FromResponse(status, body, "")
	}
	if out.CSRFToken == "" {
		return "", &apierror.Error{Kind: apierror.KindServer, Message: "The server returned no CSRF token.", StatusCode: status, Err: apperrors.ErrNoCSRFToken}
	}
	return out.CSRFToken, nil
}

// CSRF returns the token for state-changing requests: the csrftoken cookie if
// the jar holds one, else a cached or freshly fetched token. Returns "" when
// none can be obtained; callers send the request without the header.
func (c *Client) CSRF(ctx context.Context) string {
	if tok := c.csrfFromCookie(); tok != "" {
		return tok
	}

	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()
	if c.csrfToken != "" {
		return c.csrfToken
	}
	tok, err := c.CSRFToken(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("csrf token unavailable")
		return ""
	}
	c.csrfToken = tok
	return tok
}

// ResetCSRF drops the cached token so the next CSRF call refetches it.
func (c *Client) ResetCSRF() {
	c.csrfMu.Lock()
	c.csrfToken = ""
	c.csrfMu.Unlock()
}

func (c *Client) csrfFromCookie() string {
	if c.http.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

// Login exchanges credentials for a token pair. Accepts both {access, refresh}
// and {user, access, refresh} bodies.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.tokenCall(ctx, RouteLogin, LoginRequest{Username: username, Password: password}, DefaultLoginError)
}

// Register creates the account and returns a token pair immediately.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	return c.tokenCall(ctx, RouteRegister, req, DefaultSignupError)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	return c.messageCall(ctx, RouteForgotPassword, ForgotPasswordRequest{Email: email}, DefaultForgotError)
}

func (c *Client) ResetPassword(ctx context.Context, uid, resetToken string, req ResetPasswordRequest) (*MessageResponse, error) {
	path := fmt.Sprintf("%s%s/%s/", RouteResetPassword, url.PathEscape(uid), url.PathEscape(resetToken))
	return c.messageCall(ctx, path, req, DefaultResetError)
}

// Refresh trades a refresh token for a new access token (and a rotated
// refresh token when the backend rotates them).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	status, body, err := c.do(ctx, http.MethodPost, RouteTokenRefresh, RefreshRequest{Refresh: refreshToken}, &out, true)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, apierror.FromResponse(status, body, "")
	}
	if out.Access == "" {
		return nil, &apierror.Error{Kind: apierror.KindServer, Message: "The server returned no access token.", StatusCode: status}
	}
	return &out, nil
}

func (c *Client) tokenCall(ctx context.Context, path string, in any, fallback string) (*TokenResponse, error) {
	var out TokenResponse
	status, body, err := c.do(ctx, http.MethodPost, path, in, &out, true)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, apierror.Credentials(status, body, fallback)
	}
	if out.Access == "" || out.Refresh == "" {
		return nil, &apierror.Error{Kind: apierror.KindServer, Message: "The server returned an incomplete token pair.", StatusCode: status}
	}
	return &out, nil
}

func (c *Client) messageCall(ctx context.Context, path string, in any, fallback string) (*MessageResponse, error) {
	var out MessageResponse
	status, body, err := c.do(ctx, http.MethodPost, path, in, &out, true)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, apierror.FromResponse(status, body, fallback)
	}
	return &out, nil
}

// do sends a JSON request. Transport failures come back as connectivity
// errors; non-2xx statuses are returned to the caller to classify.
func (c *Client) do(ctx context.Context, method, path string, in, out any, withCSRF bool) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("[backend] marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("[backend] new request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if withCSRF {
		if tok := c.CSRF(ctx); tok != "" {
			req.Header.Set(CSRFHeader, tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("backend unreachable")
		return 0, nil, apierror.Transport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, apierror.Transport(ctx, err)
	}
	if resp.StatusCode/100 == 2 && out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, &apierror.Error{Kind: apierror.KindServer, Message: "The server returned an unreadable response.", StatusCode: resp.StatusCode, Err: err}
		}
	}
	return resp.StatusCode, body, nil
}
