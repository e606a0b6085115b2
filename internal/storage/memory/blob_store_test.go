package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "images/a.png", "image/png", strings.NewReader("bytes"))
	require.NoError(t, err)
	require.Equal(t, "memory://images/a.png", uri)

	data, ok := store.Object("images/a.png")
	require.True(t, ok)
	require.Equal(t, "bytes", string(data))
	require.Equal(t, 1, store.Len())

	_, ok = store.Object("missing")
	require.False(t, ok)
}
