// Package sqlite stores post records in a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS threads (
	version   INTEGER PRIMARY KEY,
	thread_id INTEGER NOT NULL,
	url       TEXT    NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS posts (
	version   INTEGER NOT NULL,
	page      INTEGER NOT NULL,
	number    TEXT    NOT NULL,
	thread_id INTEGER NOT NULL,
	post_id   INTEGER NOT NULL,
	record    TEXT    NOT NULL,
	PRIMARY KEY (version, page, number)
)`}

// Config selects the database file.
type Config struct {
	Path     string
	ReadOnly bool
}

// Sink writes records into the posts table.
type Sink struct {
	cfg      Config
	db       *sql.DB
	versions crawler.VersionIndex
}

// New validates cfg. The database is opened by Initialize.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("%w: no database specified", crawler.ErrConfiguration)
	}
	return &Sink{cfg: cfg}, nil
}

// Initialize opens the database and creates the schema.
func (s *Sink) Initialize(ctx context.Context) error {
	path := s.cfg.Path
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: stat database: %v", crawler.ErrConfiguration, err)
			}
			if s.cfg.ReadOnly {
				return fmt.Errorf("%w: database %s does not exist", crawler.ErrConfiguration, path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("%w: create database directory: %v", crawler.ErrConfiguration, err)
			}
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("%w: open sqlite: %v", crawler.ErrConfiguration, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping sqlite: %v", crawler.ErrConfiguration, err)
	}
	if !s.cfg.ReadOnly {
		for _, stmt := range schema {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return fmt.Errorf("create schema: %w", err)
			}
		}
	}
	s.db = db
	return nil
}

// AnnounceThreads upserts the thread table and the version mapping.
func (s *Sink) AnnounceThreads(ctx context.Context, threads map[int]crawler.ThreadRequest) error {
	if s.db == nil {
		return errors.New("sqlite sink is not initialized")
	}
	if !s.cfg.ReadOnly {
		versions := make([]int, 0, len(threads))
		for v := range threads {
			versions = append(versions, v)
		}
		sort.Ints(versions)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin announce: %w", err)
		}
		for _, v := range versions {
			req := threads[v]
			if _, err := tx.ExecContext(ctx, `
INSERT INTO threads (version, thread_id, url) VALUES (?, ?, ?)
ON CONFLICT (version) DO UPDATE SET thread_id = excluded.thread_id, url = excluded.url`,
				v, req.ThreadID, req.URL); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("upsert thread %d: %w", v, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit announce: %w", err)
		}
	}
	s.versions.Announce(threads)
	return nil
}

// Post upserts record.
func (s *Sink) Post(ctx context.Context, record crawler.PostRecord) error {
	if s.db == nil {
		return errors.New("sqlite sink is not initialized")
	}
	if s.cfg.ReadOnly {
		return errors.New("sqlite sink is read-only")
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
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO posts (version, page, number, thread_id, post_id, record) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (version, page, number) DO UPDATE SET
	thread_id = excluded.thread_id,
	post_id   = excluded.post_id,
	record    = excluded.record`,
		version, record.Page, record.Number, record.Thread, record.ID, string(data)); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Enumerate lists every stored post.
func (s *Sink) Enumerate(ctx context.Context) (crawler.ArchiveIndex, error) {
	if s.db == nil {
		return nil, errors.New("sqlite sink is not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT version, page, number FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

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
func (s *Sink) Read(ctx context.Context, version, page int, number string) (crawler.PostRecord, error) {
	if s.db == nil {
		return crawler.PostRecord{}, errors.New("sqlite sink is not initialized")
	}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM posts WHERE version = ? AND page = ? AND number = ?`,
		version, page, number).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.PostRecord{}, fmt.Errorf("%w: thread%d/page%d/post%s", crawler.ErrPostNotFound, version, page, number)
	}
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("query post: %w", err)
	}
	var record crawler.PostRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return crawler.PostRecord{}, fmt.Errorf("decode post: %w", err)
	}
	return record, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
