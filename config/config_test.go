package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/guarzo/gymapi/common/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 15*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Refresh.WaitTimeout)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
baseURL: https://gym.example.com/api
timeout: 5s
refresh:
  waitTimeout: 1m
store:
  type: file
  config:
    dir: /tmp/gym
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gym.example.com/api", cfg.BaseURL)
	assert.Equal(t, "gymapi", cfg.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, time.Minute, cfg.Refresh.WaitTimeout)
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, fileStore{Dir: "/tmp/gym"}, cfg.Store.Config)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "UnknownStore",
			content: "store:\n  type: s3\n",
		},
		{
			name:    "UnusedStoreKey",
			content: "store:\n  type: file\n  config:\n    dir: /tmp\n    path: /tmp\n",
		},
		{
			name:    "MissingRedisAddr",
			content: "store:\n  type: redis\n  config:\n    db: 1\n",
		},
		{
			name:    "InvalidBaseURL",
			content: "baseURL: localhost\n",
		},
		{
			name:    "NegativeTimeout",
			content: "refresh:\n  timeout: -1s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestStore_UnmarshalYAML_WeakTypes(t *testing.T) {
	var s Store
	require.NoError(t, yaml.Unmarshal([]byte("type: redis\nconfig:\n  addr: localhost:6379\n  db: \"2\"\n  prefix: app\n"), &s))

	assert.Equal(t, redisStore{Addr: "localhost:6379", DB: 2, Prefix: "app"}, s.Config)
}

func TestStoreFactory_CreateStore(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		s, err := memoryStore{}.CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &store.Memory{}, s)
	})

	t.Run("File", func(t *testing.T) {
		s, err := NewFileStore(t.TempDir()).CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &store.File{}, s)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)

		s, err := redisStore{Addr: mr.Addr()}.CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &store.Redis{}, s)
	})
}
