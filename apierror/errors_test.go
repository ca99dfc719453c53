package apierror_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jrsteele09/stockpilot/apierror"
	"github.com/stretchr/testify/require"
)

func TestMessageFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Invalid credentials"}`, "Invalid credentials"},
		{"error", `{"error":"User with this email does not exist"}`, "User with this email does not exist"},
		{"non field errors", `{"non_field_errors":["Invalid username or password."]}`, "Invalid username or password."},
		{"field error", `{"username":["A user with that username already exists."]}`, "username: A user with that username already exists."},
		{"nested field error", `{"confirm_password":{"password":["Passwords must match."]}}`, "confirm_password: Passwords must match."},
		{"detail wins", `{"error":"second","detail":"first"}`, "first"},
		{"empty object", `{}`, ""},
		{"not json", `<html>oops</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, apierror.MessageFromBody([]byte(tc.body)))
		})
	}
}

func TestFromResponse(t *testing.T) {
	t.Run("validation uses backend message", func(t *testing.T) {
		err := apierror.FromResponse(http.StatusBadRequest, []byte(`{"error":"Quantity must be greater than zero."}`), "")
		require.Equal(t, apierror.KindValidation, err.Kind)
		require.Equal(t, "Quantity must be greater than zero.", err.Message)
		require.Equal(t, http.StatusBadRequest, err.StatusCode)
	})

	t.Run("validation fallback", func(t *testing.T) {
		err := apierror.FromResponse(http.StatusBadRequest, nil, "")
		require.Equal(t, apierror.MsgValidation, err.Message)
	})

	t.Run("forbidden", func(t *testing.T) {
		err := apierror.FromResponse(http.StatusForbidden, nil, "")
		require.Equal(t, apierror.KindForbidden, err.Kind)
		require.Equal(t, apierror.MsgForbidden, err.Message)
	})

	t.Run("server", func(t *testing.T) {
		err := apierror.FromResponse(http.StatusBadGateway, []byte("bad gateway"), "")
		require.Equal(t, apierror.KindServer, err.Kind)
		require.Equal(t, apierror.MsgServer, err.Message)
	})

	t.Run("not found", func(t *testing.T) {
		err := apierror.FromResponse(http.StatusNotFound, []byte(`{"detail":"No Product matches the given query."}`), "")
		require.Equal(t, apierror.KindNotFound, err.Kind)
		require.Equal(t, "No Product matches the given query.", err.Message)
	})
}

func TestCredentials(t *testing.T) {
	err := apierror.Credentials(http.StatusBadRequest, []byte(`{"detail":"Invalid credentials"}`), "Invalid credentials")
	require.Equal(t, apierror.KindValidation, err.Kind)
	require.Equal(t, "Invalid credentials", err.Message)

	err = apierror.Credentials(http.StatusBadRequest, []byte(`{"password":["Ensure this field has at least 6 characters."]}`), "Signup failed")
	require.Equal(t, apierror.KindValidation, err.Kind)
	require.Equal(t, "password: Ensure this field has at least 6 characters.", err.Message)

	err = apierror.Credentials(http.StatusUnauthorized, nil, "Invalid credentials")
	require.Equal(t, apierror.KindCredentials, err.Kind)
	require.Equal(t, "Invalid credentials", err.Message)
}

func TestKinds(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("list products: %w", apierror.Connectivity(cause))

	require.True(t, apierror.Is(err, apierror.KindConnectivity))
	require.False(t, apierror.Is(err, apierror.KindSessionExpired))
	require.Equal(t, apierror.KindConnectivity, apierror.KindOf(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, apierror.KindUnknown, apierror.KindOf(cause))
}

func TestTransport(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	require.Equal(t, apierror.KindConnectivity, apierror.Transport(context.Background(), cause).Kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := apierror.Transport(ctx, cause)
	require.Equal(t, apierror.KindCanceled, err.Kind)
	require.Equal(t, apierror.MsgCanceled, err.Message)
	require.ErrorIs(t, err, cause)
}
