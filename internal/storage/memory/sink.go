// Package memory keeps post records in process memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

type key struct {
	version int
	page    int
	number  string
}

// Sink stores records in a map keyed by version, page and number.
type Sink struct {
	mu       sync.RWMutex
	records  map[key]crawler.PostRecord
	versions crawler.VersionIndex
}

// New creates an empty in-memory sink.
func New() *Sink {
	return &Sink{records: make(map[key]crawler.PostRecord)}
}

// Initialize is a no-op.
func (s *Sink) Initialize(_ context.Context) error {
	return nil
}

// AnnounceThreads records the thread to version mapping.
func (s *Sink) AnnounceThreads(_ context.Context, threads map[int]crawler.ThreadRequest) error {
	s.versions.Announce(threads)
	return nil
}

// Post stores a copy of record.
func (s *Sink) Post(_ context.Context, record crawler.PostRecord) error {
	version, err := s.versions.Lookup(record.Thread)
	if err != nil {
		return err
	}
	if err := crawler.ValidatePostKey(version, record.Page, record.Number); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key{version, record.Page, record.Number}] = clone(record)
	return nil
}

// Enumerate lists every stored post.
func (s *Sink) Enumerate(_ context.Context) (crawler.ArchiveIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := crawler.ArchiveIndex{}
	for k := range s.records {
		idx.Add(k.version, k.page, k.number)
	}
	idx.Sort()
	return idx, nil
}

// Read returns a copy of a stored post.
func (s *Sink) Read(_ context.Context, version, page int, number string) (crawler.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key{version, page, number}]
	if !ok {
		return crawler.PostRecord{}, fmt.Errorf("%w: thread%d/page%d/post%s", crawler.ErrPostNotFound, version, page, number)
	}
	return clone(record), nil
}

// Len reports how many posts are stored.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *Sink) Close() error {
	return nil
}

func clone(record crawler.PostRecord) crawler.PostRecord {
	if record.Ratings != nil {
		ratings := make(map[string]int, len(record.Ratings))
		for k, v := range record.Ratings {
			ratings[k] = v
		}
		record.Ratings = ratings
	}
	return record
}
