package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/finscrape/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scraping_targets (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	url          TEXT NOT NULL,
	links        JSONB NOT NULL DEFAULT '[]',
	keywords     JSONB,
	content_type TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	render       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scraped_contents (
	id           TEXT PRIMARY KEY,
	target_id    TEXT NOT NULL,
	target_name  TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL UNIQUE,
	metadata     JSONB,
	consumed     BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS scraped_contents_pending ON scraped_contents (scraped_at) WHERE NOT consumed;

CREATE TABLE IF NOT EXISTS scraping_logs (
	id                TEXT PRIMARY KEY,
	target_id         TEXT NOT NULL,
	target_name       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	items_found       INTEGER NOT NULL DEFAULT 0,
	items_new         INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ,
	execution_time_ms BIGINT
);
`

// PostgresStore persists to PostgreSQL through a pgx pool. The unique
// content_hash column makes Insert atomic across processes.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to dsn and creates the schema if absent.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "postgres_store")}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) SyncTargets(ctx context.Context, targets []types.Target) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO scraping_targets (id, name, url, links, keywords, content_type, is_active, render, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, links = EXCLUDED.links,
			keywords = EXCLUDED.keywords, content_type = EXCLUDED.content_type,
			is_active = EXCLUDED.is_active, render = EXCLUDED.render, updated_at = now()`
	for _, t := range targets {
		links := t.Links
		if links == nil {
			links = []types.LinkRule{}
		}
		if _, err := tx.Exec(ctx, q, t.ID, t.Name, t.URL, links, t.Keywords, t.ContentType, t.Active, t.Render); err != nil {
			return fmt.Errorf("postgres upsert target %s: %w", t.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ActiveTargets(ctx context.Context) ([]types.Target, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, url, links, COALESCE(keywords, '[]'::jsonb), content_type, is_active, render
		FROM scraping_targets WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres query targets: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Target, error) {
		var t types.Target
		err := row.Scan(&t.ID, &t.Name, &t.URL, &t.Links, &t.Keywords, &t.ContentType, &t.Active, &t.Render)
		return t, err
	})
}

func (s *PostgresStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scraped_contents WHERE content_hash = $1)`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *types.Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO scraped_contents (id, target_id, target_name, title, content, url, content_hash, metadata, consumed, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (content_hash) DO NOTHING`,
		rec.ID, rec.TargetID, rec.TargetName, rec.Title, rec.Content, rec.URL,
		rec.Fingerprint, rec.Metadata, rec.Consumed, rec.ScrapedAt)
	if err != nil {
		return false, fmt.Errorf("postgres insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, run *types.RunLog) error {
	if run.ID == "" {
		run.ID = NewID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scraping_logs (id, target_id, target_name, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.TargetID, run.TargetName, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *types.RunLog) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scraping_logs
		SET status = $2, items_found = $3, items_new = $4, error_message = NULLIF($5, ''),
			finished_at = $6, execution_time_ms = $7
		WHERE id = $1`,
		run.ID, run.Status, run.Found, run.New, run.Error, run.FinishedAt, run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("postgres update run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]types.Record, error) {
	q := `
		SELECT id, target_id, target_name, title, content, url, content_hash, metadata, consumed, scraped_at
		FROM scraped_contents WHERE NOT consumed ORDER BY scraped_at`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query pending: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Record, error) {
		var r types.Record
		err := row.Scan(&r.ID, &r.TargetID, &r.TargetName, &r.Title, &r.Content, &r.URL,
			&r.Fingerprint, &r.Metadata, &r.Consumed, &r.ScrapedAt)
		return r, err
	})
}

func (s *PostgresStore) Ack(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE scraped_contents SET consumed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres ack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.logger.Info("postgres store closing")
	s.pool.Close()
	return nil
}
