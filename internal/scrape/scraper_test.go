package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func servePage(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeExtractsBasicMetadata(t *testing.T) {
	t.Parallel()

	srv := servePage(t, `<html><head>
		<title>A Post</title>
		<meta name="description" content="Plain description">
	</head><body></body></html>`)

	s := New(Config{}, zap.NewNop())
	meta, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "A Post", meta.Title)
	require.Equal(t, "Plain description", meta.Description)
	require.Equal(t, srv.URL, meta.URL)
	require.Empty(t, meta.Image)
}

func TestScrapePrefersOpenGraphTags(t *testing.T) {
	t.Parallel()

	srv := servePage(t, `<html><head>
		<title>HTML Title</title>
		<meta name="description" content="plain">
		<meta property="og:title" content="OG Title">
		<meta property="og:description" content="og desc">
		<meta property="og:image" content="https://cdn.example.com/x.png">
	</head><body></body></html>`)

	s := New(Config{}, zap.NewNop())
	meta, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "OG Title", meta.Title)
	require.Equal(t, "og desc", meta.Description)
	require.Equal(t, "https://cdn.example.com/x.png", meta.Image)
}

func TestScrapeReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{}, zap.NewNop())
	_, err := s.Scrape(context.Background(), srv.URL)
	require.Error(t, err)
}
