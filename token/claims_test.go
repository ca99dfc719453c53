package token_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"github.com/jrsteele09/stockpilot/token"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("django-insecure-test-key")

func sign(t *testing.T, claims jwtlib.MapClaims, key []byte) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestDecode(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("numeric user id", func(t *testing.T) {
		raw := sign(t, jwtlib.MapClaims{"user_id": 42, "username": "bob", "exp": exp, "token_type": "access"}, testKey)
		c, err := token.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, token.UserID("42"), c.UserID)
		require.Equal(t, "bob", c.Username)
		require.Equal(t, exp, c.Expiry().Unix())
	})

	t.Run("string user id", func(t *testing.T) {
		raw := sign(t, jwtlib.MapClaims{"user_id": "7b1c", "username": "alice", "exp": exp}, testKey)
		c, err := token.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, token.UserID("7b1c"), c.UserID)
	})

	t.Run("missing claims fail closed", func(t *testing.T) {
		raw := sign(t, jwtlib.MapClaims{"user_id": 1, "exp": exp}, testKey)
		_, err := token.Decode(raw)
		require.ErrorIs(t, err, apperrors.ErrMissingClaims)
		require.Contains(t, err.Error(), "username")

		raw = sign(t, jwtlib.MapClaims{"user_id": 1, "username": "bob"}, testKey)
		_, err = token.Decode(raw)
		require.ErrorIs(t, err, apperrors.ErrMissingClaims)
		require.Contains(t, err.Error(), "exp")
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		raw := sign(t, jwtlib.MapClaims{"user_id": 1, "username": "bob", "exp": exp, "token_type": "refresh"}, testKey)
		_, err := token.Decode(raw)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := token.Decode("not-a-jwt")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := token.Decode("")
		require.ErrorIs(t, err, apperrors.ErrNoAccessToken)
	})
}

func TestDecoder_SigningKey(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	d := token.NewDecoder(token.WithSigningKey(testKey))

	raw := sign(t, jwtlib.MapClaims{"user_id": 1, "username": "bob", "exp": exp}, testKey)
	_, err := d.Decode(raw)
	require.NoError(t, err)

	forged := sign(t, jwtlib.MapClaims{"user_id": 1, "username": "bob", "exp": exp}, []byte("other-key"))
	_, err = d.Decode(forged)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	t.Run("expired token still decodes", func(t *testing.T) {
		old := sign(t, jwtlib.MapClaims{"user_id": 1, "username": "bob", "exp": time.Now().Add(-time.Minute).Unix()}, testKey)
		c, err := d.Decode(old)
		require.NoError(t, err)
		require.True(t, d.Expired(c))
	})
}

func TestDecoder_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })

	mk := func(exp time.Time) *token.Claims {
		return &token.Claims{RegisteredClaims: jwtlib.RegisteredClaims{ExpiresAt: jwtlib.NewNumericDate(exp)}}
	}

	d := token.NewDecoder()
	require.True(t, d.Expired(mk(now.Add(-10*time.Second))))
	require.True(t, d.Expired(mk(now)))
	require.False(t, d.Expired(mk(now.Add(time.Minute))))
	require.True(t, d.Expired(nil))
	require.True(t, d.Expired(&token.Claims{}))

	withLeeway := token.NewDecoder(token.WithLeeway(2 * time.Minute))
	require.True(t, withLeeway.Expired(mk(now.Add(time.Minute))))
}

func TestPair_OAuth2(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	tok := token.Pair{Access: "a", Refresh: "r"}.OAuth2(exp)
	require.Equal(t, "a", tok.AccessToken)
	require.Equal(t, "r", tok.RefreshToken)
	require.Equal(t, "Bearer", tok.Type())
	require.True(t, tok.Valid())
	require.True(t, token.Pair{}.Empty())
}
