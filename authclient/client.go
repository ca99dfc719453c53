package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/jrsteele09/stockpilot/internal/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const maxBodySize = 10 << 20

// Session is the token side of the retry protocol, implemented by session.Manager.
type Session interface {
	// BearerToken returns the access token to attach ("" when logged out).
	// If the stored token is already expired the session is logged out and
	// a session-expired error is returned without any network call.
	BearerToken(ctx context.Context) (string, error)

	// RefreshRejected obtains a new access token after rejected was refused
	// with a 401. On failure the session has been cleared, unless the
	// failure was a connectivity error.
	RefreshRejected(ctx context.Context, rejected string) (string, error)
}

// Request is a replayable API call. Body is kept as bytes so the call can be
// sent a second time after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into out.
func (r *Response) JSON(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &apierror.Error{Kind: apierror.KindServer, Message: "The server returned an unreadable response.", StatusCode: r.StatusCode, Err: err}
	}
	return nil
}

// Client is the single path every authenticated API call goes through.
type Client struct {
	api     *backend.Client
	session Session
	send    SendFunc
}

type Option func(*clientOptions)

type clientOptions struct {
	middleware []Middleware
	limiter    *rate.Limiter
}

// WithMiddleware appends extra middleware after the built-in chain.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *clientOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithRateLimiter overrides the limiter built from config.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *clientOptions) {
		o.limiter = l
	}
}

func New(cfg config.APIConfig, api *backend.Client, session Session, opts ...Option) *Client {
	o := &clientOptions{}
	if cfg.GetRateLimit() > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.GetRateLimit()), cfg.GetRateBurst())
	}
	for _, opt := range opts {
		opt(o)
	}

	mw := []Middleware{
		HeadersMiddleware(api.UserAgent()),
		RequestIDMiddleware,
		CSRFMiddleware(api),
	}
	if o.limiter != nil {
		mw = append(mw, RateLimitMiddleware(o.limiter))
	}
	mw = append(mw, LoggingMiddleware)
	mw = append(mw, o.middleware...)

	return &Client{
		api:     api,
		session: session,
		send:    ChainMiddleware(api.HTTPClient().Do, mw...),
	}
}

// Do sends req with the bearer token. A 401 triggers at most one refresh
// followed by exactly one replay; the replay's outcome is what the caller
// sees. Non-2xx responses are returned together with an *apierror.Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req, false)
}

func (c *Client) do(ctx context.Context, req *Request, retried bool) (*Response, error) {
	bearer, err := c.session.BearerToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.attempt(ctx, req, bearer)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && retried:
		log.Debug().Str("path", req.Path).Msg("401 after refresh, giving up")
		return resp, apierror.SessionExpired(resp.StatusCode, nil)

	case resp.StatusCode == http.StatusUnauthorized:
		if _, err := c.session.RefreshRejected(ctx, bearer); err != nil {
			if apierror.Is(err, apierror.KindConnectivity) || apierror.Is(err, apierror.KindCanceled) {
				return nil, err
			}
			return resp, apierror.SessionExpired(resp.StatusCode, err)
		}
		return c.do(ctx, req, true)

	case resp.StatusCode == http.StatusForbidden:
		if strings.Contains(strings.ToLower(string(resp.Body)), "csrf") {
			c.api.ResetCSRF()
		}
		return resp, apierror.FromResponse(resp.StatusCode, resp.Body, "")

	case resp.StatusCode/100 != 2:
		return resp, apierror.FromResponse(resp.StatusCode, resp.Body, "")
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *Request, bearer string) (*Response, error) {
	target := c.api.URL(req.Path)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[authclient] new request %s: %w", req.Path, err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	httpResp, err := c.send(httpReq)
	if err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, apierror.Transport(ctx, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, apierror.Transport(ctx, err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// GetJSON issues GET path?query and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return resp.JSON(out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
	return err
}

// PostMultipart uploads content as the form file field.
func (c *Client) PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("[authclient] multipart: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("[authclient] multipart copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("[authclient] multipart close: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Header: header, Body: buf.Bytes()})
	if err != nil {
		return err
	}
	return resp.JSON(out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("[authclient] marshal %s: %w", path, err)
		}
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := c.Do(ctx, &Request{Method: method, Path: path, Header: header, Body: payload})
	if err != nil {
		return err
	}
	return resp.JSON(out)
}
