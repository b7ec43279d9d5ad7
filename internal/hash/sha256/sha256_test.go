package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("<html><body>profile</body></html>"))
	require.NoError(t, err)
	again, err := h.Hash([]byte("<html><body>profile</body></html>"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Len(t, got, 64)

	known, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", known)
}

func TestHasherShortHash(t *testing.T) {
	t.Parallel()

	h := New()
	assert.Equal(t, "b94d27b9", h.ShortHash([]byte("hello world"), 8))
	assert.Len(t, h.ShortHash([]byte("hello world"), 0), 64)
	assert.Len(t, h.ShortHash([]byte("hello world"), 100), 64)
}
