package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

type execRecorder struct {
	query string
	args  []interface{}
	err   error
}

func (e *execRecorder) Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	e.query = query
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func (e *execRecorder) Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (e *execRecorder) QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row {
	return nil
}

func TestLedger_RecordArgs(t *testing.T) {
	db := &execRecorder{}
	l := New(db)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := l.Record(context.Background(), &thumbnail.Generation{
		ID:           "2f8f9f3e-35a4-4b0c-9c64-1b8f0f6d1e11",
		VideoKey:     "videos/a.mp4",
		ThumbnailKey: "thumbnails/a.jpg",
		Strategy:     "streaming",
		Duration:     1500 * time.Millisecond,
		GeneratedAt:  at,
	})
	require.NoError(t, err)
	assert.Contains(t, db.query, "INSERT INTO thumbnail_generations")
	require.Len(t, db.args, 7)
	assert.Equal(t, int64(1500), db.args[5])
	assert.Equal(t, at, db.args[6])
}

func TestLedger_PostgresErrorMapping(t *testing.T) {
	db := &execRecorder{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	err := New(db).Record(context.Background(), &thumbnail.Generation{ID: uuid.NewString()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database migration required")
}

func TestLedger_Integration(t *testing.T) {
	dsn := os.Getenv("THUMBNAIL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("THUMBNAIL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	l := NewWithPool(pool)
	require.NoError(t, l.EnsureSchema(ctx))

	videoKey := "videos/it-" + uuid.NewString() + ".mp4"
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, &thumbnail.Generation{
			ID:           uuid.NewString(),
			VideoKey:     videoKey,
			ThumbnailKey: "thumbnails/x.jpg",
			Strategy:     "streaming",
			Duration:     time.Duration(i) * time.Second,
			GeneratedAt:  time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := l.ListByVideo(ctx, videoKey, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2*time.Second, got[0].Duration)
}
