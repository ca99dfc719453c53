package tokenstore_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/stockpilot/internal/config"
	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"github.com/jrsteele09/stockpilot/token"
	"github.com/jrsteele09/stockpilot/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	tokenstore.ScryptN = 1 << 10
}

func newRedisStore(t *testing.T) (*tokenstore.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := tokenstore.NewRedis(rdb, "sp")
	t.Cleanup(func() {
		_ = store.Close()
		mr.Close()
	})
	return store, mr
}

// exerciseStore runs the contract every Store implementation must satisfy.
func exerciseStore(t *testing.T, s tokenstore.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, token.AccessTokenKey)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	pair, err := tokenstore.LoadPair(ctx, s)
	require.NoError(t, err)
	require.True(t, pair.Empty())

	require.NoError(t, tokenstore.SavePair(ctx, s, token.Pair{Access: "a1", Refresh: "r1"}))
	pair, err = tokenstore.LoadPair(ctx, s)
	require.NoError(t, err)
	require.Equal(t, token.Pair{Access: "a1", Refresh: "r1"}, pair)

	// last write wins
	require.NoError(t, s.Set(ctx, token.AccessTokenKey, "a2"))
	v, err := s.Get(ctx, token.AccessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "a2", v)

	require.NoError(t, tokenstore.ClearPair(ctx, s))
	pair, err = tokenstore.LoadPair(ctx, s)
	require.NoError(t, err)
	require.True(t, pair.Empty())

	// deleting absent keys is not an error
	require.NoError(t, tokenstore.ClearPair(ctx, s))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, tokenstore.NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	exerciseStore(t, tokenstore.NewFile(path, ""))

	t.Run("permissions and removal", func(t *testing.T) {
		ctx := context.Background()
		s := tokenstore.NewFile(path, "")
		require.NoError(t, s.Set(ctx, token.AccessTokenKey, "a"))
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		require.NoError(t, s.Delete(ctx, token.AccessTokenKey))
		_, err = os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})
}

func TestFile_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	exerciseStore(t, tokenstore.NewFile(path, "correct horse"))

	ctx := context.Background()
	s := tokenstore.NewFile(path, "correct horse")
	require.NoError(t, tokenstore.SavePair(ctx, s, token.Pair{Access: "secret-access", Refresh: "secret-refresh"}))

	t.Run("ciphertext on disk", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "secret-access")
	})

	t.Run("fresh instance reads it back", func(t *testing.T) {
		pair, err := tokenstore.LoadPair(ctx, tokenstore.NewFile(path, "correct horse"))
		require.NoError(t, err)
		require.Equal(t, "secret-access", pair.Access)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := tokenstore.NewFile(path, "wrong").Get(ctx, token.AccessTokenKey)
		require.ErrorIs(t, err, apperrors.ErrWrongPassphrase)
	})

	t.Run("no passphrase", func(t *testing.T) {
		_, err := tokenstore.NewFile(path, "").Get(ctx, token.AccessTokenKey)
		require.ErrorIs(t, err, apperrors.ErrWrongPassphrase)
	})

	t.Run("clearing with the wrong passphrase removes the file", func(t *testing.T) {
		s := tokenstore.NewFile(path, "wrong")
		require.NoError(t, tokenstore.ClearPair(ctx, s))
		_, err := os.Stat(path)
		require.ErrorIs(t, err, fs.ErrNotExist)

		pair, err := tokenstore.LoadPair(ctx, s)
		require.NoError(t, err)
		require.True(t, pair.Empty())
	})
}

func TestFile_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := tokenstore.NewFile(path, "")
	_, err := s.Get(context.Background(), token.AccessTokenKey)
	require.ErrorIs(t, err, apperrors.ErrStoreCorrupted)

	// clearing a corrupted file recovers it
	require.NoError(t, tokenstore.ClearPair(context.Background(), s))
	_, err = s.Get(context.Background(), token.AccessTokenKey)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestRedis(t *testing.T) {
	s, mr := newRedisStore(t)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), token.RefreshTokenKey, "r"))
	require.True(t, mr.Exists("sp:refresh_token"))
}

func TestOpen(t *testing.T) {
	t.Setenv("STOCKPILOT_TOKEN_STORE", "memory")
	s, err := tokenstore.Open(config.New())
	require.NoError(t, err)
	require.IsType(t, &tokenstore.Memory{}, s)

	t.Setenv("STOCKPILOT_TOKEN_STORE", "file")
	t.Setenv("STOCKPILOT_TOKEN_FILE", filepath.Join(t.TempDir(), "t.json"))
	s, err = tokenstore.Open(config.New())
	require.NoError(t, err)
	require.IsType(t, &tokenstore.File{}, s)

	t.Setenv("STOCKPILOT_TOKEN_STORE", "carrier-pigeon")
	_, err = tokenstore.Open(config.New())
	require.ErrorIs(t, err, apperrors.ErrUnsupported)
}
