package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, BackendFS, s.Backend)
	assert.Equal(t, 10*time.Second, s.LockTimeout)
	assert.False(t, s.SkipEmptied)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[user]
name = "Test User"
email = "test@example.com"

[storage]
backend = "bolt"

[rebase]
skip_emptied = true

[revsets]
immutable_bookmarks = ["main", "release"]
`), 0644))

	v := New()
	require.NoError(t, ReadFile(v, path))
	s, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "Test User", s.UserName)
	assert.Equal(t, "test@example.com", s.UserEmail)
	assert.Equal(t, BackendBolt, s.Backend)
	assert.True(t, s.SkipEmptied)
	assert.Equal(t, []string{"main", "release"}, s.ImmutableBookmarks)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MXVC_USER_NAME", "From Env")
	t.Setenv("MXVC_LOG_LEVEL", "debug")
	s, err := FromViper(New())
	require.NoError(t, err)
	assert.Equal(t, "From Env", s.UserName)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestValidate(t *testing.T) {
	v := New()
	v.Set("storage.backend", "s3")
	_, err := FromViper(v)
	assert.Error(t, err)

	require.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "missing.toml")))
}
