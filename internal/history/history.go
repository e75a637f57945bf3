// Package history keeps an optional audit log of generation runs in
// Postgres. When no DATABASE_URL is configured the Noop recorder is used
// and nothing is persisted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Run is one recorded generation run outcome.
type Run struct {
	Source      string // "web" | "bot"
	Mode        string
	Framing     string
	Style       string
	AspectRatio string
	Status      string // "complete" or a failure status
	Views       int    // generated images, 0..3
	Duration    time.Duration
}

type Recorder interface {
	Record(ctx context.Context, run Run) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

type Noop struct{}

func (Noop) Record(context.Context, Run) error                   { return nil }
func (Noop) Purge(context.Context, time.Duration) (int64, error) { return 0, nil }
func (Noop) Close() error                                        { return nil }

type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			mode TEXT NOT NULL,
			framing TEXT NOT NULL,
			style TEXT NOT NULL,
			aspect_ratio TEXT NOT NULL,
			status TEXT NOT NULL,
			views INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure runs schema: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (source, mode, framing, style, aspect_ratio, status, views, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := p.db.ExecContext(ctx, query,
		run.Source, run.Mode, run.Framing, run.Style, run.AspectRatio,
		run.Status, run.Views, run.Duration.Milliseconds())
	return err
}

func (p *Postgres) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM runs WHERE created_at < $1`
	res, err := p.db.ExecContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
