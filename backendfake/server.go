package backendfake

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"

	DefaultSecret   = "stockpilot-dev-secret"
	DefaultUsername = "bob"
	DefaultEmail    = "bob@example.com"
	DefaultPassword = "password123"
)

var errNotFound = errors.New("Not found.")

// RecordedRequest is what the fake saw of one incoming request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	CSRFToken     string
	RequestID     string
	UserAgent     string
}

// Server is an in-process stand-in for the StockPilot REST backend. It
// implements the /auth/* contract with SimpleJWT-shaped HS256 tokens and a
// small in-memory /api/* inventory.
type Server struct {
	env        string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	router     chi.Router
	data       *data
	revoked    *blacklist
	seedData   bool

	lock          sync.Mutex
	csrfToken     string
	accessGen     int
	logins        int
	refreshes     int
	csrfCalls     int
	apiCalls      int
	failRefresh   bool
	rejectNext    int
	rejectAll     bool
	rotateRefresh bool
	requireCSRF   bool
	refreshDelay  time.Duration
	requests      []RecordedRequest
}

type Option func(*Server)

func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithAccessTTL sets the lifetime of minted access tokens (default 60m).
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

// WithRefreshTTL sets the lifetime of minted refresh tokens (default 24h).
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.refreshTTL = ttl
	}
}

// WithEnv enables route and request logging when env is "DEV".
func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = strings.ToUpper(env)
	}
}

// WithoutSeedData starts with no products, orders or alerts.
func WithoutSeedData() Option {
	return func(s *Server) {
		s.seedData = false
	}
}

// New returns a fake backend with the default user (bob / password123)
// already registered.
func New(opts ...Option) *Server {
	s := &Server{
		secret:     []byte(DefaultSecret),
		accessTTL:  60 * time.Minute,
		refreshTTL: 24 * time.Hour,
		data:       newData(),
		seedData:   true,
		csrfToken:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		revoked:    newBlacklist(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.data.addUser(DefaultUsername, DefaultEmail, DefaultPassword); err != nil {
		panic("[backendfake New] seed user: " + err.Error())
	}
	if s.seedData {
		s.data.seed()
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(s.recordMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/csrf/", s.csrf)
		r.Group(func(r chi.Router) {
			r.Use(s.csrfMiddleware)
			r.Post("/login/", s.login)
			r.Post("/register/", s.register)
			r.Post("/forgot-password/", s.forgotPassword)
			r.Post("/reset-password/{uid}/{token}/", s.resetPassword)
			r.Post("/token/refresh/", s.refreshToken)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.csrfMiddleware)
			r.Post("/logout/", s.logout)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.csrfMiddleware)

		r.Get("/product/", s.listProducts)
		r.Post("/product/", s.createProduct)
		r.Get("/product/{id}/", s.getProduct)
		r.Put("/product/{id}/", s.updateProduct)
		r.Patch("/product/{id}/", s.updateProduct)
		r.Delete("/product/{id}/", s.deleteProduct)

		r.Get("/inventory/", s.listTransactions)
		r.Post("/inventory/", s.recordTransaction)
		r.Post("/inventory-forecast/", s.inventoryForecast)

		r.Get("/order/", s.listOrders)
		r.Post("/order/", s.createOrder)
		r.Get("/order/{id}/", s.getOrder)
		r.Patch("/order/{id}/", s.updateOrder)
		r.Put("/order/{id}/", s.updateOrder)
		r.Delete("/order/{id}/", s.deleteOrder)
		r.Get("/order/{id}/items/", s.listOrderItems)
		r.Post("/order/{id}/items/", s.addOrderItem)
		r.Delete("/order/item/{id}/", s.deleteOrderItem)

		r.Get("/stock-alert/", s.listAlerts)
		r.Patch("/stock-alert/{id}/", s.updateAlert)
		r.Put("/stock-alert/{id}/", s.updateAlert)

		r.Get("/forecast/", s.averageForecast)
		r.Get("/gemini-insights/", s.demandForecast)
		r.Get("/analytics/", s.analytics)
		r.Post("/chatbot/", s.chatbot)
	})
	s.router = r
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logRoute(method, route)
		return nil
	})
}

func logRoute(method, path string) {
	log.Info().Msgf("[%s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	return methodColour(method) + fmt.Sprintf(" %-7s", method) + reset
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			CSRFToken:     r.Header.Get(backend.CSRFHeader),
			RequestID:     r.Header.Get("X-Request-ID"),
			UserAgent:     r.Header.Get("User-Agent"),
		})
		s.lock.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env != "DEV" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		log.Info().Msgf("[%s] %s %s%d%s %s", colourMethod(r.Method), r.URL.Path,
			statusColour(status), status, reset, time.Since(start).Round(time.Microsecond))
	})
}

// csrfMiddleware rejects state-changing requests without the current token
// when RequireCSRF is on.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		s.lock.Lock()
		required, want := s.requireCSRF, s.csrfToken
		s.lock.Unlock()
		if required {
			got := r.Header.Get(backend.CSRFHeader)
			if got == "" {
				writeDetail(w, http.StatusForbidden, "CSRF Failed: CSRF token missing.")
				return
			}
			if got != want {
				writeDetail(w, http.StatusForbidden, "CSRF Failed: CSRF token incorrect.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates the bearer access token the way SimpleJWT's
// JWTAuthentication does, and applies the RejectNext/RejectAll hooks.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.apiCalls++
		forced := s.rejectAll
		if s.rejectNext > 0 {
			s.rejectNext--
			forced = true
		}
		s.lock.Unlock()

		header := r.Header.Get("Authorization")
		if header == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || forced {
			writeTokenInvalid(w)
			return
		}
		tok, err := verify(s.secret, raw, tokenTypeAccess)
		if err != nil {
			writeTokenInvalid(w)
			return
		}
		s.lock.Lock()
		stale := tok.gen < s.accessGen
		s.lock.Unlock()
		if stale {
			writeTokenInvalid(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeTokenInvalid(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}

// Hooks and counters used by tests.

// FailRefresh makes /auth/token/refresh/ answer 401.
func (s *Server) FailRefresh(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failRefresh = fail
}

// RejectNext makes the next n authenticated calls answer 401 regardless of
// the token they carry.
func (s *Server) RejectNext(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectNext = n
}

// RejectAll makes every authenticated call answer 401.
func (s *Server) RejectAll(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectAll = reject
}

// RevokeAccessTokens invalidates every access token issued so far; tokens
// minted afterwards are accepted.
func (s *Server) RevokeAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessGen++
}

// RotateRefresh makes refresh return a new refresh token and blacklist the old one.
func (s *Server) RotateRefresh(rotate bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rotateRefresh = rotate
}

// RequireCSRF enforces X-CSRFToken on state-changing requests.
func (s *Server) RequireCSRF(require bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requireCSRF = require
}

// RotateCSRF issues a new CSRF token, invalidating the old one.
func (s *Server) RotateCSRF() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.csrfToken = strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RefreshDelay holds each refresh call for d before answering.
func (s *Server) RefreshDelay(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshDelay = d
}

func (s *Server) Logins() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.logins
}

func (s *Server) Refreshes() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refreshes
}

func (s *Server) CSRFCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.csrfCalls
}

// APICalls counts requests that reached the bearer check.
func (s *Server) APICalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.apiCalls
}

func (s *Server) Requests() []RecordedRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the recorded requests for one path.
func (s *Server) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) generation() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.accessGen
}

func (s *Server) CSRFToken() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.csrfToken
}

// Secret is the HS256 key tokens are signed with.
func (s *Server) Secret() []byte {
	return s.secret
}

// MintAccessToken signs an access token for the default user expiring after ttl
// (negative ttl gives an already expired token).
func (s *Server) MintAccessToken(ttl time.Duration) string {
	u, _ := s.data.userByName(DefaultUsername)
	tok, err := mintAccessToken(s.secret, u.ID, u.Username, time.Now().Add(ttl), s.generation())
	if err != nil {
		panic(err)
	}
	return tok
}

// MintRefreshToken signs a refresh token for the default user.
func (s *Server) MintRefreshToken(ttl time.Duration) string {
	u, _ := s.data.userByName(DefaultUsername)
	tok, err := mintRefreshToken(s.secret, u.ID, u.Username, time.Now().Add(ttl))
	if err != nil {
		panic(err)
	}
	return tok
}

// AddUser registers another account.
func (s *Server) AddUser(username, email, password string) error {
	_, err := s.data.addUser(username, email, password)
	return err
}

// ResetLink returns the uid and token from the last forgot-password request
// for email.
func (s *Server) ResetLink(email string) (uid, token string, ok bool) {
	u, found := s.data.userByEmail(email)
	if !found {
		return "", "", false
	}
	s.data.lock.RLock()
	defer s.data.lock.RUnlock()
	if u.ResetToken == "" {
		return "", "", false
	}
	return encodeUID(u.ID), u.ResetToken, true
}
