package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("INGEST_INGEST_ROOT_DATABASE_ID", "root-db")
	t.Setenv("INGEST_API_TOKEN", "secret")
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := baseConfig(t)

	require.Equal(t, 5, cfg.Ingest.Concurrency)
	require.True(t, cfg.Ingest.EnableCaching)
	require.Equal(t, 30*time.Second, cfg.PostTimeout())
	require.Equal(t, 5, cfg.API.MaxRetries)
	require.Equal(t, time.Second, cfg.BackoffBase())
	require.Equal(t, "local", cfg.Storage.Backend)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("INGEST_INGEST_ROOT_DATABASE_ID", "root-db")
	t.Setenv("INGEST_API_TOKEN", "secret")
	t.Setenv("INGEST_INGEST_CONCURRENCY", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Ingest.Concurrency)
}

func TestValidateRequiresRootDatabase(t *testing.T) {
	t.Setenv("INGEST_API_TOKEN", "secret")
	_, err := Load("")
	require.ErrorContains(t, err, "root_database_id")
}

func TestValidateRequiresToken(t *testing.T) {
	t.Setenv("INGEST_INGEST_ROOT_DATABASE_ID", "root-db")
	_, err := Load("")
	require.ErrorContains(t, err, "api.token")
}

func TestValidateStorageBackend(t *testing.T) {
	cfg := baseConfig(t)

	cfg.Storage.Backend = "gcs"
	require.ErrorContains(t, cfg.Validate(), "gcs_bucket")

	cfg.Storage.GCSBucket = "bucket"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "s3"
	require.ErrorContains(t, cfg.Validate(), "unknown storage backend")
}

func TestValidateCacheBackend(t *testing.T) {
	cfg := baseConfig(t)

	cfg.Cache.Backend = "postgres"
	require.ErrorContains(t, cfg.Validate(), "cache.dsn")

	cfg.Cache.DSN = "postgres://localhost/ingest"
	require.NoError(t, cfg.Validate())
}

func TestValidatePubSub(t *testing.T) {
	cfg := baseConfig(t)

	cfg.PubSub.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "pubsub")

	cfg.PubSub.ProjectID = "proj"
	cfg.PubSub.TopicName = "runs"
	require.NoError(t, cfg.Validate())
}
