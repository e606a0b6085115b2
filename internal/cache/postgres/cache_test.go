package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestNewWithPoolValidatesInputs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "ingest_cache")
	require.Error(t, err)

	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)

	cache, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "ingest_cache", cache.table)
}

func TestCacheSetUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewWithPool(mock, "ingest_cache")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO ingest_cache").
		WithArgs("image-abc123", []byte("asset-1")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, cache.Set(context.Background(), "image-abc123", []byte("asset-1")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheGetHit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewWithPool(mock, "ingest_cache")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM ingest_cache").
		WithArgs("metadata-xyz").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"title":"t"}`)))

	value, ok, err := cache.Get(context.Background(), "metadata-xyz")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"title":"t"}`, string(value))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheGetMiss(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewWithPool(mock, "ingest_cache")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM ingest_cache").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	_, ok, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewWithPool(mock, "ingest_cache")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_cache").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, cache.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
