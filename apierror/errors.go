package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed call so callers can render the right message.
type Kind string

const (
	KindCredentials    Kind = "credentials"     // 401 on login/signup
	KindSessionExpired Kind = "session_expired" // 401 after the refresh cycle gave up
	KindForbidden      Kind = "forbidden"       // 403
	KindValidation     Kind = "validation"      // 400
	KindConnectivity   Kind = "connectivity"    // no response received
	KindCanceled       Kind = "canceled"        // the caller gave up first
	KindNotFound       Kind = "not_found"       // 404
	KindServer         Kind = "server"          // 5xx
	KindUnknown        Kind = "unknown"
)

const (
	MsgConnectivity   = "Unable to reach the server. Please check your connection."
	MsgCanceled       = "The request was cancelled."
	MsgSessionExpired = "Your session has expired. Please log in again."
	MsgForbidden      = "You do not have permission to perform this action."
	MsgValidation     = "The request was invalid."
	MsgNotFound       = "The requested resource was not found."
	MsgServer         = "The server encountered an error. Please try again later."
)

// Error is the normalised failure shape returned by the session and
// authenticated clients. Transport errors are never returned raw.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int   // 0 when no response was received
	Err        error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// Connectivity wraps a transport failure where no response was received.
func Connectivity(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: MsgConnectivity, Err: err}
}

// Canceled reports a call abandoned because its context ended.
func Canceled(err error) *Error {
	return &Error{Kind: KindCanceled, Message: MsgCanceled, Err: err}
}

// Transport classifies a failed round trip: Canceled when ctx has ended,
// Connectivity otherwise.
func Transport(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return Canceled(err)
	}
	return Connectivity(err)
}

// SessionExpired is returned when an authenticated call cannot be recovered by a refresh.
func SessionExpired(statusCode int, err error) *Error {
	return &Error{Kind: KindSessionExpired, Message: MsgSessionExpired, StatusCode: statusCode, Err: err}
}

// FromResponse classifies a non-2xx response. fallback replaces the kind's
// default message when the body carries none.
func FromResponse(statusCode int, body []byte, fallback string) *Error {
	kind, defaultMsg := classify(statusCode)
	if fallback == "" {
		fallback = defaultMsg
	}
	msg := MessageFromBody(body)
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: kind, Message: msg, StatusCode: statusCode}
}

// Credentials builds a login/signup failure. The message is the same inline
// text either way; a 401 is KindCredentials and field errors (400) are
// KindValidation.
func Credentials(statusCode int, body []byte, fallback string) *Error {
	msg := MessageFromBody(body)
	if msg == "" {
		msg = fallback
	}
	kind := KindCredentials
	switch {
	case statusCode == http.StatusBadRequest:
		kind = KindValidation
	case statusCode == http.StatusForbidden:
		kind = KindForbidden
	case statusCode >= 500:
		kind = KindServer
	}
	return &Error{Kind: kind, Message: msg, StatusCode: statusCode}
}

func classify(statusCode int) (Kind, string) {
	switch {
	case statusCode == http.StatusUnauthorized:
		return KindSessionExpired, MsgSessionExpired
	case statusCode == http.StatusForbidden:
		return KindForbidden, MsgForbidden
	case statusCode == http.StatusNotFound:
		return KindNotFound, MsgNotFound
	case statusCode >= 400 && statusCode < 500:
		return KindValidation, MsgValidation
	case statusCode >= 500:
		return KindServer, MsgServer
	default:
		return KindUnknown, http.StatusText(statusCode)
	}
}

// MessageFromBody extracts a user-facing message from a DRF-style error body.
// Checked in order: detail, error, message, non_field_errors[0], then the
// first field error (alphabetical) rendered as "field: message".
func MessageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message", "non_field_errors"} {
		if msg := firstString(fields[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msg := firstString(fields[k]); msg != "" {
			return k + ": " + msg
		}
	}
	return ""
}

// firstString accepts "msg", ["msg", ...] or {"field": ["msg"]}.
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if msg := firstString(item); msg != "" {
				return msg
			}
		}
		return ""
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if msg := firstString(nested[k]); msg != "" {
				return msg
			}
		}
	}
	return ""
}
