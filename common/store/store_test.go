package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
	"github.com/guarzo/gymapi/common/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionStores(t *testing.T) {
	backends := map[string]func(t *testing.T) common.SessionStore{
		"memory": func(t *testing.T) common.SessionStore {
			return store.NewMemory()
		},
		"file": func(t *testing.T) common.SessionStore {
			s, err := store.NewFile(filepath.Join(t.TempDir(), "session"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) common.SessionStore {
			_, client := newTestRedis(t)
			return store.NewRedis(client, "test")
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			testSessionStore(t, newStore(t))
		})
	}
}

func testSessionStore(t *testing.T, s common.SessionStore) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		_, err := s.Get(ctx)
		assert.ErrorIs(t, err, common.ErrNoCredentials)

		_, err = s.GetUser(ctx)
		assert.ErrorIs(t, err, common.ErrNoCredentials)

		// removing nothing is fine
		require.NoError(t, s.Remove(ctx))
		require.NoError(t, s.RemoveUser(ctx))
	})

	t.Run("Token", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, common.NewToken("T1", "R1")))
		require.NoError(t, s.Save(ctx, common.NewToken("T2", "R2")))

		token, err := s.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "T2", token.AccessToken)
		assert.Equal(t, "R2", token.RefreshToken)

		require.NoError(t, s.Remove(ctx))
		_, err = s.Get(ctx)
		assert.ErrorIs(t, err, common.ErrNoCredentials)
	})

	t.Run("TokenExpiry", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		require.NoError(t, s.Save(ctx, common.NewToken(signed, "R3")))

		token, err := s.Get(ctx)
		require.NoError(t, err)
		assert.True(t, exp.Equal(token.Expiry))
	})

	t.Run("User", func(t *testing.T) {
		user := &model.User{ID: 7, Name: "Ana", Email: "ana@example.com"}
		require.NoError(t, s.SaveUser(ctx, user))

		// stored copies are not aliased
		user.Name = "changed"

		stored, err := s.GetUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Ana", stored.Name)
		assert.Equal(t, int64(7), stored.ID)

		require.NoError(t, s.RemoveUser(ctx))
		_, err = s.GetUser(ctx)
		assert.ErrorIs(t, err, common.ErrNoCredentials)
	})
}

func TestFile_Permissions(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), common.NewToken("T1", "R1")))

	info, err := os.Stat(filepath.Join(dir, "auth_token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedis_Keys(t *testing.T) {
	mr, client := newTestRedis(t)
	s := store.NewRedis(client, "")

	require.NoError(t, s.Save(context.Background(), common.NewToken("T1", "R1")))

	raw, err := mr.Get("gym:auth_token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"T1","refresh_token":"R1"}`, raw)
}

func TestFile_Expiry(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFile(dir)
	require.NoError(t, err)

	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Save(context.Background(), &oauth2.Token{AccessToken: "T1", RefreshToken: "R1", Expiry: expiry}))

	raw, err := os.ReadFile(filepath.Join(dir, "auth_token.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"T1","refresh_token":"R1","expiry":"2030-01-02T03:04:05Z"}`, string(raw))

	token, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, expiry.Equal(token.Expiry))

	// a token without a known expiry stores none
	require.NoError(t, s.Save(context.Background(), common.NewToken("T2", "R2")))

	raw, err = os.ReadFile(filepath.Join(dir, "auth_token.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"T2","refresh_token":"R2"}`, string(raw))

	token, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, token.Expiry.IsZero())
}

func TestRedis_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	s := store.NewRedis(client, "test")
	mr.Close()

	_, err = s.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNoCredentials)
}
