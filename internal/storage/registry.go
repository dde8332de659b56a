// Package storage resolves export sinks by short name.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/storage/gcs"
	"github.com/JakeFAU/forum-archiver/internal/storage/local"
	"github.com/JakeFAU/forum-archiver/internal/storage/memory"
	"github.com/JakeFAU/forum-archiver/internal/storage/postgres"
	"github.com/JakeFAU/forum-archiver/internal/storage/sqlite"
)

// Options carries every setting a sink factory may need.
type Options struct {
	OutputDir string
	Database  string
	Bucket    string
	Prefix    string
	Table     string
	ReadOnly  bool
}

// Factory builds an uninitialized sink.
type Factory func(opts Options) (crawler.Sink, error)

// Entry describes one registered sink.
type Entry struct {
	Name        string
	ShortName   string
	Description string
	New         Factory
}

// Registry maps short names to sink factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds e, rejecting duplicate or empty short names.
func (r *Registry) Register(e Entry) error {
	if e.ShortName == "" || e.New == nil {
		return fmt.Errorf("sink entry %q is incomplete", e.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ShortName]; ok {
		return fmt.Errorf("sink %q already registered", e.ShortName)
	}
	r.entries[e.ShortName] = e
	return nil
}

// Lookup returns the entry registered under shortName.
func (r *Registry) Lookup(shortName string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[shortName]
	if !ok {
		return Entry{}, fmt.Errorf("%w: unknown sink %q", crawler.ErrConfiguration, shortName)
	}
	return e, nil
}

// Entries lists registered sinks ordered by short name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })
	return out
}

// Open resolves shortName and builds the sink. The caller initializes it.
func (r *Registry) Open(shortName string, opts Options) (crawler.Sink, error) {
	e, err := r.Lookup(shortName)
	if err != nil {
		return nil, err
	}
	sink, err := e.New(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s sink: %w", e.ShortName, err)
	}
	return sink, nil
}

// DefaultRegistry returns a registry holding every built-in sink.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range []Entry{
		{
			Name:        "JSON Exporter",
			ShortName:   "json",
			Description: "One JSON file per post under thread<version>/page<N>/",
			New: func(opts Options) (crawler.Sink, error) {
				return local.New(local.Config{BaseDir: opts.OutputDir, ReadOnly: opts.ReadOnly})
			},
		},
		{
			Name:        "SQLite Archive",
			ShortName:   "sqlite",
			Description: "Single-file SQLite database",
			New: func(opts Options) (crawler.Sink, error) {
				return sqlite.New(sqlite.Config{Path: opts.Database, ReadOnly: opts.ReadOnly})
			},
		},
		{
			Name:        "PostgreSQL Archive",
			ShortName:   "postgres",
			Description: "PostgreSQL table with JSONB records",
			New: func(opts Options) (crawler.Sink, error) {
				return postgres.New(postgres.Config{DSN: opts.Database, Table: opts.Table, ReadOnly: opts.ReadOnly})
			},
		},
		{
			Name:        "Cloud Storage Exporter",
			ShortName:   "gcs",
			Description: "JSON objects in a Google Cloud Storage bucket",
			New: func(opts Options) (crawler.Sink, error) {
				return gcs.New(gcs.Config{Bucket: opts.Bucket, Prefix: opts.Prefix, ReadOnly: opts.ReadOnly})
			},
		},
		{
			Name:        "In-Memory",
			ShortName:   "memory",
			Description: "Keeps posts in process memory (dry run)",
			New: func(Options) (crawler.Sink, error) {
				return memory.New(), nil
			},
		},
	} {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}
