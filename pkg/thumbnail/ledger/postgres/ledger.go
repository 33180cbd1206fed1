package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// Schema creates the generation ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS thumbnail_generations (
	id            UUID PRIMARY KEY,
	video_key     TEXT NOT NULL,
	thumbnail_key TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	placeholder   BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms   BIGINT NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS thumbnail_generations_video_idx
	ON thumbnail_generations (video_key, generated_at DESC);`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Ledger implements thumbnail.Ledger using PostgreSQL
type Ledger struct {
	db DBTX
}

// New creates a new PostgreSQL ledger
func New(db DBTX) *Ledger {
	return &Ledger{db: db}
}

// NewWithPool creates a new PostgreSQL ledger with connection pool
func NewWithPool(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

// EnsureSchema creates the ledger table when it does not exist yet
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, Schema); err != nil {
		return l.handlePostgresError("ensure schema", err)
	}
	return nil
}

func (l *Ledger) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("generation already recorded")
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (l *Ledger) Record(ctx context.Context, g *thumbnail.Generation) error {
	query := `
		INSERT INTO thumbnail_generations (
			id, video_key, thumbnail_key, strategy, placeholder, duration_ms, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := l.db.Exec(ctx, query,
		g.ID, g.VideoKey, g.ThumbnailKey, g.Strategy, g.Placeholder,
		g.Duration.Milliseconds(), g.GeneratedAt)
	if err != nil {
		return l.handlePostgresError("record generation", err)
	}
	return nil
}

func (l *Ledger) ListByVideo(ctx context.Context, videoKey string, limit int) ([]*thumbnail.Generation, error) {
	query := `
		SELECT id::text, video_key, thumbnail_key, strategy, placeholder, duration_ms, generated_at
		FROM thumbnail_generations
		WHERE video_key = $1
		ORDER BY generated_at DESC`
	args := []interface{}{videoKey}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, l.handlePostgresError("list generations", err)
	}
	defer rows.Close()

	var out []*thumbnail.Generation
	for rows.Next() {
		var (
			g          thumbnail.Generation
			durationMS int64
		)
		if err := rows.Scan(&g.ID, &g.VideoKey, &g.ThumbnailKey, &g.Strategy,
			&g.Placeholder, &durationMS, &g.GeneratedAt); err != nil {
			return nil, l.handlePostgresError("scan generation", err)
		}
		g.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, l.handlePostgresError("list generations", err)
	}
	return out, nil
}
