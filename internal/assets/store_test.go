package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemem "github.com/jaehyun-p/notion-ingest/internal/cache/memory"
	"github.com/jaehyun-p/notion-ingest/internal/hash/md5"
	storemem "github.com/jaehyun-p/notion-ingest/internal/storage/memory"
)

func newTestStore() (*Store, *cachemem.Cache, *storemem.BlobStore, *storemem.BlobStore) {
	cache := cachemem.New()
	blobs := storemem.NewBlobStore()
	static := storemem.NewBlobStore()
	return New(cache, blobs, static, md5.New(), zap.NewNop()), cache, blobs, static
}

func TestMaterializeStoresImageByContentHash(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store, _, blobs, static := newTestStore()
	ref, err := store.Materialize(context.Background(), srv.URL+"/pic.png?token=abc", "post-1")
	require.NoError(t, err)

	hash := md5.New().Hash([]byte("png-bytes"))
	require.Equal(t, "images/"+hash+".png", ref)

	data, ok := blobs.Object(ref)
	require.True(t, ok)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, 0, static.Len())
}

func TestMaterializeUsesDurableCacheAcrossCalls(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store, _, _, _ := newTestStore()
	url := srv.URL + "/pic.png"

	first, err := store.Materialize(context.Background(), url, "post-1")
	require.NoError(t, err)
	second, err := store.Materialize(context.Background(), url, "post-1")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int32(1), hits.Load())
}

func TestMaterializeGifBypassesImagePipeline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("gif-bytes"))
	}))
	defer srv.Close()

	store, _, blobs, static := newTestStore()
	ref, err := store.Materialize(context.Background(), srv.URL+"/anim.gif?X-Sig=1", "post-1")
	require.NoError(t, err)
	require.Equal(t, "/anim.gif", ref)

	data, ok := static.Object("anim.gif")
	require.True(t, ok)
	require.Equal(t, "gif-bytes", string(data))
	require.Equal(t, 0, blobs.Len())
}

func TestMaterializeDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, cache, _, _ := newTestStore()
	_, err := store.Materialize(context.Background(), srv.URL+"/gone.png", "post-1")
	require.Error(t, err)
	require.Equal(t, 0, cache.Len())
}
