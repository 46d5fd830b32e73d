package dag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend")

	for _, content := range []string{"fs\n", "bolt\n"} {
		require.NoError(t, SafeWrite(path, []byte(content), 0644))
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	// A failed write leaves neither temp files nor a changed target.
	assert.Error(t, SafeWrite(filepath.Join(dir, "missing", "backend"), []byte("x"), 0644))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backend", entries[0].Name())
}

func TestSafeRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "op")
	if err := SafeWrite(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := SafeRemove(path); err != nil {
		t.Fatalf("SafeRemove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	// Removing again is fine.
	if err := SafeRemove(path); err != nil {
		t.Fatalf("SafeRemove missing: %v", err)
	}
}
