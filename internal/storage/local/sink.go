// Package local implements the JSON exporter: one file per post under
// <base>/thread<version>/page<N>/post<number>.json.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

// Config captures the parameters for the JSON exporter.
type Config struct {
	// BaseDir is the root directory where threads are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// ReadOnly opens an existing archive for the read path.
	ReadOnly bool
	// Fs defaults to the operating system filesystem.
	Fs afero.Fs
}

// Sink writes post records as JSON files.
type Sink struct {
	fs       afero.Fs
	baseDir  string
	readOnly bool
	versions crawler.VersionIndex
}

// New creates a JSON exporter. No filesystem access happens until Initialize.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("%w: no output directory specified", crawler.ErrConfiguration)
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Sink{
		fs:       fs,
		baseDir:  filepath.Clean(cfg.BaseDir),
		readOnly: cfg.ReadOnly,
	}, nil
}

// Initialize creates the output directory and checks it is writable. In
// read-only mode the directory must already exist.
func (s *Sink) Initialize(_ context.Context) error {
	info, err := s.fs.Stat(s.baseDir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", crawler.ErrConfiguration, s.baseDir)
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && s.readOnly:
		return fmt.Errorf("%w: input directory %s does not exist", crawler.ErrConfiguration, s.baseDir)
	case errors.Is(err, os.ErrNotExist):
		if mkErr := s.fs.MkdirAll(s.baseDir, 0o750); mkErr != nil {
			return fmt.Errorf("%w: create output directory: %v", crawler.ErrConfiguration, mkErr)
		}
	default:
		return fmt.Errorf("%w: stat output directory: %v", crawler.ErrConfiguration, err)
	}
	if s.readOnly {
		return nil
	}

	testFile := filepath.Join(s.baseDir, ".writable_test")
	if err := afero.WriteFile(s.fs, testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("%w: output directory is not writable: %v", crawler.ErrConfiguration, err)
	}
	if err := s.fs.Remove(testFile); err != nil {
		return fmt.Errorf("clean up test file: %w", err)
	}
	return nil
}

// AnnounceThreads creates one directory per version.
func (s *Sink) AnnounceThreads(_ context.Context, threads map[int]crawler.ThreadRequest) error {
	if !s.readOnly {
		for version := range threads {
			dir := filepath.Join(s.baseDir, crawler.ThreadDirName(version))
			if err := s.fs.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create thread directory: %w", err)
			}
		}
	}
	s.versions.Announce(threads)
	return nil
}

// Post writes record to its file, replacing any earlier copy.
func (s *Sink) Post(_ context.Context, record crawler.PostRecord) error {
	if s.readOnly {
		return errors.New("json sink is read-only")
	}
	version, err := s.versions.Lookup(record.Thread)
	if err != nil {
		return err
	}
	fullPath, err := s.postPath(version, record.Page, record.Number)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create page directory: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	if err := afero.WriteFile(s.fs, fullPath, data, 0o600); err != nil {
		return fmt.Errorf("write post: %w", err)
	}
	return nil
}

// Enumerate walks thread, page and post entries. Unrecognised names are ignored.
func (s *Sink) Enumerate(_ context.Context) (crawler.ArchiveIndex, error) {
	idx := crawler.ArchiveIndex{}
	threads, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read archive root: %w", err)
	}
	for _, thread := range threads {
		version, ok := crawler.ParseThreadDirName(thread.Name())
		if !thread.IsDir() || !ok {
			continue
		}
		threadDir := filepath.Join(s.baseDir, thread.Name())
		pages, err := afero.ReadDir(s.fs, threadDir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", thread.Name(), err)
		}
		for _, page := range pages {
			pageNum, ok := crawler.ParsePageDirName(page.Name())
			if !page.IsDir() || !ok {
				continue
			}
			posts, err := afero.ReadDir(s.fs, filepath.Join(threadDir, page.Name()))
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", thread.Name(), page.Name(), err)
			}
			for _, post := range posts {
				if number, ok := crawler.ParsePostFileName(post.Name()); ok && !post.IsDir() {
					idx.Add(version, pageNum, number)
				}
			}
		}
	}
	idx.Sort()
	return idx, nil
}

// Read loads one stored post.
func (s *Sink) Read(_ context.Context, version, page int, number string) (crawler.PostRecord, error) {
	fullPath, err := s.postPath(version, page, number)
	if err != nil {
		return crawler.PostRecord{}, err
	}
	data, err := afero.ReadFile(s.fs, fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return crawler.PostRecord{}, fmt.Errorf("%w: thread%d/page%d/post%s", crawler.ErrPostNotFound, version, page, number)
		}
		return crawler.PostRecord{}, fmt.Errorf("read post: %w", err)
	}
	var record crawler.PostRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return crawler.PostRecord{}, fmt.Errorf("decode %s: %w", fullPath, err)
	}
	return record, nil
}

// Close is a no-op; every write is flushed when Post returns.
func (s *Sink) Close() error {
	return nil
}

func (s *Sink) postPath(version, page int, number string) (string, error) {
	if err := crawler.ValidatePostKey(version, page, number); err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(crawler.PostObjectPath(version, page, number)))
	// Clean the path and verify it's within baseDir to prevent path traversal.
	if !strings.HasPrefix(filepath.Clean(fullPath), s.baseDir+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return fullPath, nil
}
