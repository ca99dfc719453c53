package authclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/jrsteele09/stockpilot/authclient"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/jrsteele09/stockpilot/internal/config"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubSession struct {
	lock       sync.Mutex
	token      string
	refreshTo  string
	refreshErr error
	bearerErr  error
	refreshes  int
	rejected   []string
}

func (s *stubSession) BearerToken(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.token, s.bearerErr
}

func (s *stubSession) RefreshRejected(ctx context.Context, rejected string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshes++
	s.rejected = append(s.rejected, rejected)
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.token = s.refreshTo
	return s.token, nil
}

type seenRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

// testBackend accepts "Bearer good" on /api/* and serves /auth/csrf/.
type testBackend struct {
	lock      sync.Mutex
	requests  []seenRequest
	csrfCalls int
	status    int
	body      string
}

func (b *testBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.lock.Lock()
	if r.URL.Path == backend.RouteCSRF {
		b.csrfCalls++
		b.lock.Unlock()
		_ = json.NewEncoder(w).Encode(backend.CSRFResponse{CSRFToken: "csrf-token"})
		return
	}
	b.requests = append(b.requests, seenRequest{method: r.Method, path: r.URL.RequestURI(), header: r.Header.Clone(), body: string(body)})
	status, respBody := b.status, b.body
	b.lock.Unlock()

	if r.Header.Get("Authorization") != "Bearer good" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type","code":"token_not_valid"}`))
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	if respBody == "" {
		respBody = `{"ok":true}`
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(respBody))
}

func (b *testBackend) seen() []seenRequest {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]seenRequest(nil), b.requests...)
}

func newClient(t *testing.T, handler http.Handler, session authclient.Session, opts ...authclient.Option) (*authclient.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("STOCKPILOT_API_URL", srv.URL)
	t.Setenv("STOCKPILOT_USER_AGENT", "stockpilot-test")
	cfg := config.New()
	return authclient.New(cfg, backend.New(cfg, nil), session, opts...), srv
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches bearer and standard headers", func(t *testing.T) {
		b := &testBackend{}
		c, _ := newClient(t, b, &stubSession{token: "good"})

		var out map[string]bool
		require.NoError(t, c.GetJSON(ctx, backend.RouteProducts, map[string][]string{"q": {"lamp"}}, &out))
		require.True(t, out["ok"])

		reqs := b.seen()
		require.Len(t, reqs, 1)
		require.Equal(t, backend.RouteProducts+"?q=lamp", reqs[0].path)
		require.Equal(t, "Bearer good", reqs[0].header.Get("Authorization"))
		require.Equal(t, "application/json", reqs[0].header.Get("Accept"))
		require.Equal(t, "stockpilot-test", reqs[0].header.Get("User-Agent"))
		require.NotEmpty(t, reqs[0].header.Get(authclient.RequestIDHeader))
		require.Empty(t, reqs[0].header.Get(backend.CSRFHeader))
	})

	t.Run("no Authorization header when logged out", func(t *testing.T) {
		b := &testBackend{}
		s := &stubSession{refreshErr: apierror.SessionExpired(0, errors.New("no refresh token"))}
		c, _ := newClient(t, b, s)

		err := c.GetJSON(ctx, backend.RouteProducts, nil, nil)
		require.True(t, apierror.Is(err, apierror.KindSessionExpired))
		require.Empty(t, b.seen()[0].header.Get("Authorization"))
		require.Equal(t, []string{""}, s.rejected)
	})

	t.Run("401 refreshes once and replays the same body", func(t *testing.T) {
		b := &testBackend{}
		s := &stubSession{token: "stale", refreshTo: "good"}
		c, _ := newClient(t, b, s)

		var out map[string]bool
		require.NoError(t, c.PostJSON(ctx, backend.RouteChatbot, map[string]string{"message": "hi"}, &out))
		require.True(t, out["ok"])
		require.Equal(t, 1, s.refreshes)
		require.Equal(t, []string{"stale"}, s.rejected)

		reqs := b.seen()
		require.Len(t, reqs, 2)
		require.Equal(t, "Bearer stale", reqs[0].header.Get("Authorization"))
		require.Equal(t, "Bearer good", reqs[1].header.Get("Authorization"))
		require.Equal(t, reqs[0].body, reqs[1].body)
		require.JSONEq(t, `{"message":"hi"}`, reqs[1].body)
		require.NotEqual(t, reqs[0].header.Get(authclient.RequestIDHeader), reqs[1].header.Get(authclient.RequestIDHeader))
	})

	t.Run("401 on the replay is terminal", func(t *testing.T) {
		b := &testBackend{}
		s := &stubSession{token: "stale", refreshTo: "still-bad"}
		c, _ := newClient(t, b, s)

		resp, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
		require.True(t, apierror.Is(err, apierror.KindSessionExpired))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, 1, s.refreshes)
		require.Len(t, b.seen(), 2)
	})

	t.Run("refresh failure ends the call as session expired", func(t *testing.T) {
		b := &testBackend{}
		cause := apierror.FromResponse(http.StatusUnauthorized, []byte(`{"detail":"Token is blacklisted"}`), "")
		s := &stubSession{token: "stale", refreshErr: cause}
		c, _ := newClient(t, b, s)

		_, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
		var apiErr *apierror.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, apierror.KindSessionExpired, apiErr.Kind)
		require.Equal(t, apierror.MsgSessionExpired, apiErr.Message)
		require.ErrorIs(t, err, cause)
		require.Len(t, b.seen(), 1)
	})

	t.Run("refresh connectivity failure is reported as connectivity", func(t *testing.T) {
		b := &testBackend{}
		s := &stubSession{token: "stale", refreshErr: apierror.Connectivity(errors.New("connection refused"))}
		c, _ := newClient(t, b, s)

		_, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
		require.True(t, apierror.Is(err, apierror.KindConnectivity))
	})

	t.Run("bearer failure stops before the network", func(t *testing.T) {
		b := &testBackend{}
		s := &stubSession{bearerErr: apierror.SessionExpired(0, nil)}
		c, _ := newClient(t, b, s)

		_, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
		require.True(t, apierror.Is(err, apierror.KindSessionExpired))
		require.Empty(t, b.seen())
	})

	t.Run("unreachable backend", func(t *testing.T) {
		c, srv := newClient(t, &testBackend{}, &stubSession{token: "good"})
		srv.Close()

		_, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
		require.True(t, apierror.Is(err, apierror.KindConnectivity))
	})
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		status  int
		body    string
		kind    apierror.Kind
		message string
	}{
		{"validation message verbatim", http.StatusBadRequest, `{"quantity":["Ensure this value is greater than or equal to 0."]}`, apierror.KindValidation, "quantity: Ensure this value is greater than or equal to 0."},
		{"validation fallback", http.StatusBadRequest, `{}`, apierror.KindValidation, apierror.MsgValidation},
		{"forbidden", http.StatusForbidden, `{}`, apierror.KindForbidden, apierror.MsgForbidden},
		{"not found", http.StatusNotFound, `{"detail":"Not found."}`, apierror.KindNotFound, "Not found."},
		{"server", http.StatusInternalServerError, `oops`, apierror.KindServer, apierror.MsgServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &testBackend{status: tt.status, body: tt.body}
			s := &stubSession{token: "good"}
			c, _ := newClient(t, b, s)

			resp, err := c.Do(ctx, &authclient.Request{Path: backend.RouteProducts})
			var apiErr *apierror.Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.kind, apiErr.Kind)
			require.Equal(t, tt.message, apiErr.Message)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Zero(t, s.refreshes)
		})
	}
}

func TestCSRFHeader(t *testing.T) {
	ctx := context.Background()

	t.Run("only state-changing methods carry the token", func(t *testing.T) {
		b := &testBackend{}
		c, _ := newClient(t, b, &stubSession{token: "good"})

		require.NoError(t, c.GetJSON(ctx, backend.RouteProducts, nil, nil))
		require.NoError(t, c.PostJSON(ctx, backend.RouteProducts, map[string]string{}, nil))
		require.NoError(t, c.PutJSON(ctx, backend.RouteProducts+"1/", map[string]string{}, nil))
		require.NoError(t, c.PatchJSON(ctx, backend.RouteProducts+"1/", map[string]string{}, nil))
		require.NoError(t, c.Delete(ctx, backend.RouteProducts+"1/"))

		reqs := b.seen()
		require.Len(t, reqs, 5)
		require.Empty(t, reqs[0].header.Get(backend.CSRFHeader))
		for _, r := range reqs[1:] {
			require.Equal(t, "csrf-token", r.header.Get(backend.CSRFHeader), r.method)
		}
		for _, r := range reqs[1:4] {
			require.Equal(t, "application/json", r.header.Get("Content-Type"), r.method)
		}
		require.Equal(t, 1, b.csrfCalls)
	})

	t.Run("a csrf 403 drops the cached token", func(t *testing.T) {
		b := &testBackend{status: http.StatusForbidden, body: `{"detail":"CSRF Failed: CSRF token incorrect."}`}
		c, _ := newClient(t, b, &stubSession{token: "good"})

		err := c.PostJSON(ctx, backend.RouteProducts, map[string]string{}, nil)
		require.True(t, apierror.Is(err, apierror.KindForbidden))
		err = c.PostJSON(ctx, backend.RouteProducts, map[string]string{}, nil)
		require.True(t, apierror.Is(err, apierror.KindForbidden))
		require.Equal(t, 2, b.csrfCalls)
	})
}

func TestPostMultipart(t *testing.T) {
	var filename, content string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == backend.RouteCSRF {
			_ = json.NewEncoder(w).Encode(backend.CSRFResponse{CSRFToken: "csrf-token"})
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		filename, content = header.Filename, string(data)
		_, _ = w.Write([]byte(`{"received":true}`))
	})
	c, _ := newClient(t, handler, &stubSession{token: "good"})

	var out map[string]bool
	err := c.PostMultipart(context.Background(), backend.RouteInventoryForecast, "file", "stock.csv", strings.NewReader("product_name\nWidget\n"), &out)
	require.NoError(t, err)
	require.True(t, out["received"])
	require.Equal(t, "stock.csv", filename)
	require.Equal(t, "product_name\nWidget\n", content)
}

func TestOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("extra middleware runs on every attempt", func(t *testing.T) {
		b := &testBackend{}
		tag := func(next authclient.SendFunc) authclient.SendFunc {
			return func(r *http.Request) (*http.Response, error) {
				r.Header.Set("X-Tenant", "shop-1")
				return next(r)
			}
		}
		c, _ := newClient(t, b, &stubSession{token: "stale", refreshTo: "good"}, authclient.WithMiddleware(tag))

		require.NoError(t, c.GetJSON(ctx, backend.RouteProducts, nil, nil))
		for _, r := range b.seen() {
			require.Equal(t, "shop-1", r.header.Get("X-Tenant"))
		}
	})

	t.Run("rate limiter honours the context", func(t *testing.T) {
		b := &testBackend{}
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		c, _ := newClient(t, b, &stubSession{token: "good"}, authclient.WithRateLimiter(limiter))

		require.NoError(t, c.GetJSON(ctx, backend.RouteProducts, nil, nil))

		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := c.GetJSON(short, backend.RouteProducts, nil, nil)
		require.True(t, apierror.Is(err, apierror.KindCanceled))
		require.False(t, apierror.Is(err, apierror.KindConnectivity))
		require.Len(t, b.seen(), 1)
	})
}

func TestChainMiddleware(t *testing.T) {
	var order []string
	mark := func(name string) authclient.Middleware {
		return func(next authclient.SendFunc) authclient.SendFunc {
			return func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next(r)
			}
		}
	}
	send := func(r *http.Request) (*http.Response, error) {
		order = append(order, "send")
		return &http.Response{StatusCode: http.StatusOK}, nil
	}

	chained := authclient.ChainMiddleware(send, mark("first"), mark("second"))
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	_, err = chained(req)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "send"}, order)
}

func TestIsStateChanging(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		require.True(t, authclient.IsStateChanging(m), m)
	}
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		require.False(t, authclient.IsStateChanging(m), m)
	}
}
