// Package postgres stores post records in PostgreSQL as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

const defaultTable = "posts"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for post rows.
type Config struct {
	DSN             string
	Table           string
	ReadOnly        bool
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// PostStore writes post rows into Postgres.
type PostStore struct {
	cfg      Config
	pool     pool
	table    string
	versions crawler.VersionIndex
}

// New validates cfg. The pool is created by Initialize.
func New(cfg Config) (*PostStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: no database specified", crawler.ErrConfiguration)
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	return &PostStore{cfg: cfg, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*PostStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	return &PostStore{cfg: cfg, pool: p, table: table}, nil
}

func tableName(name string) (string, error) {
	if name == "" {
		name = defaultTable
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("%w: invalid table name %q", crawler.ErrConfiguration, name)
	}
	return name, nil
}

// Initialize connects and, unless read-only, creates the tables.
func (s *PostStore) Initialize(ctx context.Context) error {
	if s.pool == nil {
		poolCfg, err := pgxpool.ParseConfig(s.cfg.DSN)
		if err != nil {
			return fmt.Errorf("%w: parse postgres dsn: %v", crawler.ErrConfiguration, err)
		}
		if s.cfg.MaxConns > 0 {
			poolCfg.MaxConns = s.cfg.MaxConns
		}
		if s.cfg.MinConns > 0 {
			poolCfg.MinConns = s.cfg.MinConns
		}
		if s.cfg.MaxConnLifetime > 0 {
			poolCfg.MaxConnLifetime = s.cfg.MaxConnLifetime
		}
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("%w: connect postgres: %v", crawler.ErrConfiguration, err)
		}
		s.pool = p
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", crawler.ErrConfiguration, err)
	}
	if s.cfg.ReadOnly {
		return nil
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_threads (
	version   INTEGER PRIMARY KEY,
	thread_id BIGINT  NOT NULL,
	url       TEXT    NOT NULL
)`, s.table)); err != nil {
		return fmt.Errorf("create threads table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	version   INTEGER     NOT NULL,
	page      INTEGER     NOT NULL,
	number    TEXT        NOT NULL,
	thread_id BIGINT      NOT NULL,
	post_id   BIGINT      NOT NULL,
	record    JSONB       NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (version, page, number)
)`, s.table)); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return nil
}

// AnnounceThreads upserts every thread in one transaction.
func (s *PostStore) AnnounceThreads(ctx context.Context, threads map[int]crawler.ThreadRequest) error {
	if s.pool == nil {
		return errors.New("post store is not initialized")
	}
	if !s.cfg.ReadOnly {
		versions := make([]int, 0, len(threads))
		for v := range threads {
			versions = append(versions, v)
		}
		sort.Ints(versions)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin announce: %w", err)
		}
		query := fmt.Sprintf(`
INSERT INTO %s_threads (version, thread_id, url) VALUES ($1, $2, $3)
ON CONFLICT (version) DO UPDATE SET thread_id = EXCLUDED.thread_id, url = EXCLUDED.url`, s.table)
		for _, v := range versions {
			if _, err := tx.Exec(ctx, query, v, threads[v].ThreadID, threads[v].URL); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("upsert thread %d: %w", v, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit announce: %w", err)
		}
	}
	s.versions.Announce(threads)
	return nil
}

// Post upserts a post row.
func (s *PostStore) Post(ctx context.Context, record crawler.PostRecord) error {
	if s.pool == nil {
		return errors.New("post store is not initialized")
	}
	if s.cfg.ReadOnly {
		return errors.New("post store is read-only")
	}
	version, err := s.versions.Lookup(record.Thread)
	if err != nil {
		return err
	}
	if err := crawler.ValidatePostKey(version, record.Page, record.Number); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (version, page, number, thread_id, post_id, record)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (version, page, number) DO UPDATE SET
	thread_id = EXCLUDED.thread_id,
	post_id   = EXCLUDED.post_id,
	record    = EXCLUDED.record,
	stored_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, version, record.Page, record.Number, record.Thread, record.ID, data); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Enumerate lists every stored post.
func (s *PostStore) Enumerate(ctx context.Context) (crawler.ArchiveIndex, error) {
	if s.pool == nil {
		return nil, errors.New("post store is not initialized")
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT version, page, number FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	idx := crawler.ArchiveIndex{}
	for rows.Next() {
		var (
			version, page int
			number        string
		)
		if err := rows.Scan(&version, &page, &number); err != nil {
			return nil, fmt.Errorf("scan post key: %w", err)
		}
		idx.Add(version, page, number)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	idx.Sort()
	return idx, nil
}

// Read loads one stored post.
func (s *PostStore) Read(ctx context.Context, version, page int, number string) (crawler.PostRecord, error) {
	if s.pool == nil {
		return crawler.PostRecord{}, errors.New("post store is not initialized")
	}
	var data []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT record FROM %s WHERE version = $1 AND page = $2 AND number = $3`, s.table),
		version, page, number).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.PostRecord{}, fmt.Errorf("%w: thread%d/page%d/post%s", crawler.ErrPostNotFound, version, page, number)
	}
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("query post: %w", err)
	}
	var record crawler.PostRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return crawler.PostRecord{}, fmt.Errorf("decode post: %w", err)
	}
	return record, nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
