package authclient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const RequestIDHeader = "X-Request-ID"

// SendFunc performs one HTTP exchange.
type SendFunc func(*http.Request) (*http.Response, error)

// Middleware decorates a SendFunc.
type Middleware func(SendFunc) SendFunc

// ChainMiddleware wraps send so that mw[0] runs first.
func ChainMiddleware(send SendFunc, mw ...Middleware) SendFunc {
	chained := send
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// IsStateChanging reports whether method needs an anti-forgery token.
func IsStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// CSRFMiddleware attaches X-CSRFToken to state-changing requests.
func CSRFMiddleware(api *backend.Client) Middleware {
	return func(next SendFunc) SendFunc {
		return func(r *http.Request) (*http.Response, error) {
			if IsStateChanging(r.Method) && r.Header.Get(backend.CSRFHeader) == "" {
				if tok := api.CSRF(r.Context()); tok != "" {
					r.Header.Set(backend.CSRFHeader, tok)
				}
			}
			return next(r)
		}
	}
}

// RequestIDMiddleware tags every attempt with a fresh X-Request-ID.
func RequestIDMiddleware(next SendFunc) SendFunc {
	return func(r *http.Request) (*http.Response, error) {
		r.Header.Set(RequestIDHeader, uuid.NewString())
		return next(r)
	}
}

func HeadersMiddleware(userAgent string) Middleware {
	return func(next SendFunc) SendFunc {
		return func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Accept") == "" {
				r.Header.Set("Accept", "application/json")
			}
			if userAgent != "" {
				r.Header.Set("User-Agent", userAgent)
			}
			return next(r)
		}
	}
}

// RateLimitMiddleware blocks until limiter admits the request or the
// request's context ends.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next SendFunc) SendFunc {
		return func(r *http.Request) (*http.Response, error) {
			if err := limiter.Wait(r.Context()); err != nil {
				return nil, apierror.Canceled(err)
			}
			return next(r)
		}
	}
}

func LoggingMiddleware(next SendFunc) SendFunc {
	return func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next(r)
		evt := log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(RequestIDHeader)).
			Dur("elapsed", time.Since(start))
		if err != nil {
			evt.Err(err).Msg("api call failed")
			return resp, err
		}
		evt.Int("status", resp.StatusCode).Msg("api call")
		return resp, nil
	}
}
