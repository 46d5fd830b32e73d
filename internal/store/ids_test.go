package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewChangeID(t *testing.T) {
	a, b := NewChangeID(), NewChangeID()
	assert.Len(t, string(a), 32)
	assert.NotEqual(t, a, b)
	assert.Len(t, string(RootChangeID), 32)
}

func TestCommitID_Short(t *testing.T) {
	id := CommitID("baguqeeraabcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, "abcdefghijkl", id.Short())
	assert.True(t, id.HasShortPrefix("abcdef"))
	assert.True(t, id.HasShortPrefix("baguqeeraab"))
	assert.False(t, id.HasShortPrefix("zzz"))
}
