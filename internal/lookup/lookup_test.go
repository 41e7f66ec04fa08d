package lookup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
)

var sampleTable = anonymizer.IdentityTable{
	"John Smith": "1b4e28ba-2fa1-41d2-883f-0016d3cca427",
	"Jane Doe":   "6fa459ea-ee8a-4ca4-894e-db77e160355e",
}

func TestFileSinkWritesNextToOutput(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink("", filepath.Join(dir, "unused"))

	location, err := sink.Save(context.Background(), Run{ID: "r1", OutputPath: filepath.Join(dir, "out.txt")}, sampleTable)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out_lookup.json"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string(sampleTable), got)
	assert.Contains(t, string(data), "\n    \"Jane Doe\"", "4-space indent, sorted keys")
}

func TestFileSinkConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables", "names.json")

	location, err := NewFileSink(path, "").Save(context.Background(), Run{ID: "r1"}, sampleTable)
	require.NoError(t, err)
	assert.Equal(t, path, location)
	assert.FileExists(t, path)
}

func TestFileSinkNeedsSomePath(t *testing.T) {
	_, err := NewFileSink("", "").Save(context.Background(), Run{ID: "r1"}, sampleTable)
	assert.Error(t, err)
}

func TestFileSinkRunDirectoryRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lookups")
	sink := NewFileSink("", dir)
	runID := "0b5f3c7e-6a8e-4c1d-9e8b-2f4a6d8c0e13"

	location, err := sink.Save(context.Background(), Run{ID: runID}, sampleTable)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, runID+"_lookup.json"), location)

	got, err := sink.Load(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, sampleTable, got)
}

func TestFileSinkLoadMisses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret_lookup.json"), []byte(`{"a":"b"}`), 0o644))
	sink := NewFileSink("", filepath.Join(dir, "lookups"))

	_, err := sink.Load(context.Background(), "6fa459ea-ee8a-4ca4-894e-db77e160355e")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sink.Load(context.Background(), "../secret")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewFileSink("", "").Load(context.Background(), "6fa459ea-ee8a-4ca4-894e-db77e160355e")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newTestRedisSink(t *testing.T, ttl time.Duration) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := newRedisSink(client, config.RedisConfig{KeyPrefix: "anonymizer", TTL: ttl}, zap.NewNop())
	t.Cleanup(func() { _ = sink.Close() })
	return sink, mr
}

func TestRedisSinkRoundTrip(t *testing.T) {
	sink, mr := newTestRedisSink(t, time.Hour)
	ctx := context.Background()

	location, err := sink.Save(ctx, Run{ID: "run-42"}, sampleTable)
	require.NoError(t, err)
	assert.Equal(t, "redis:anonymizer:lookup:run-42", location)

	assert.Equal(t, "1b4e28ba-2fa1-41d2-883f-0016d3cca427", mr.HGet("anonymizer:lookup:run-42", "John Smith"))
	assert.Equal(t, time.Hour, mr.TTL("anonymizer:lookup:run-42"))

	got, err := sink.Load(ctx, "run-42")
	require.NoError(t, err)
	assert.Equal(t, sampleTable, got)
}

func TestRedisSinkLoadMissing(t *testing.T) {
	sink, _ := newTestRedisSink(t, 0)

	_, err := sink.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSinkEmptyTableIsNoop(t *testing.T) {
	sink, mr := newTestRedisSink(t, 0)

	_, err := sink.Save(context.Background(), Run{ID: "empty"}, anonymizer.IdentityTable{})
	require.NoError(t, err)
	assert.False(t, mr.Exists("anonymizer:lookup:empty"))
}

func TestNewRedisSinkFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	sink, err := NewRedisSink(config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", MaxConnections: 2}, zap.NewNop())
	require.NoError(t, err)
	defer sink.Close()

	_, err = sink.Save(context.Background(), Run{ID: "x"}, sampleTable)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lookup:x"))
}

func newTestPostgresSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sink, err := newPostgresSink(sqlx.NewDb(db, "postgres"), "", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, mock
}

func TestPostgresSinkSave(t *testing.T) {
	sink, mock := newTestPostgresSink(t)
	createdAt := time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identity_lookups (run_id, original, substitute, created_at)")).
		WithArgs(
			"run-1", "Jane Doe", "6fa459ea-ee8a-4ca4-894e-db77e160355e", createdAt,
			"run-1", "John Smith", "1b4e28ba-2fa1-41d2-883f-0016d3cca427", createdAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	location, err := sink.Save(context.Background(), Run{ID: "run-1", CreatedAt: createdAt}, sampleTable)
	require.NoError(t, err)
	assert.Equal(t, "postgres:identity_lookups/run-1", location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkEnsureSchema(t *testing.T) {
	sink, mock := newTestPostgresSink(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS identity_lookups").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkLoad(t *testing.T) {
	sink, mock := newTestPostgresSink(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT original, substitute FROM identity_lookups WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"original", "substitute"}).
			AddRow("Jane Doe", "6fa459ea-ee8a-4ca4-894e-db77e160355e").
			AddRow("John Smith", "1b4e28ba-2fa1-41d2-883f-0016d3cca427"))

	got, err := sink.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleTable, got)

	mock.ExpectQuery("SELECT original, substitute").
		WithArgs("run-2").
		WillReturnRows(sqlmock.NewRows([]string{"original", "substitute"}))

	_, err = sink.Load(context.Background(), "run-2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkRejectsUnsafeTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = newPostgresSink(sqlx.NewDb(db, "postgres"), "lookups; DROP TABLE users", zap.NewNop())
	assert.Error(t, err)
}

func TestNewSelectsSink(t *testing.T) {
	sink, err := New(config.LookupConfig{Sink: "none"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, sink)

	sink, err = New(config.LookupConfig{Sink: "file"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	_, err = New(config.LookupConfig{Sink: "s3"}, zap.NewNop())
	assert.Error(t, err)
}

func TestMaskURLs(t *testing.T) {
	assert.Equal(t, "redis://:xxxxx@cache:6379/0", maskRedisURL("redis://:secret@cache:6379/0"))
	assert.Equal(t, "postgres://app:xxxxx@db/anon", maskDatabaseURL("postgres://app:secret@db/anon"))
}
