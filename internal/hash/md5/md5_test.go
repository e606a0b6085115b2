package md5

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got := h.Hash([]byte("hello world"))
	require.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
	require.Equal(t, got, h.Hash([]byte("hello world")))
}

func TestHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	require.NotEqual(t, h.Hash([]byte("post-a")), h.Hash([]byte("post-b")))
}
