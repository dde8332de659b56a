// Package gcs stores post records as JSON objects in a Google Cloud Storage
// bucket, using the same thread/page/post layout as the JSON exporter.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

const manifestName = "thread.json"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket   string
	Prefix   string
	ReadOnly bool
}

type objectStore interface {
	Check(ctx context.Context) error
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Sink writes post records to a bucket.
type Sink struct {
	cfg      Config
	store    objectStore
	versions crawler.VersionIndex
}

// New validates cfg. The storage client is created by Initialize using
// application default credentials.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: bucket name is required", crawler.ErrConfiguration)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Sink{cfg: cfg}, nil
}

// NewWithClient creates a sink around an existing storage client.
func NewWithClient(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s.store = &bucketStore{client: client, bucket: client.Bucket(cfg.Bucket)}
	return s, nil
}

// Initialize connects to the bucket and confirms it exists.
func (s *Sink) Initialize(ctx context.Context) error {
	if s.store == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("%w: create storage client: %v", crawler.ErrConfiguration, err)
		}
		s.store = &bucketStore{client: client, bucket: client.Bucket(s.cfg.Bucket)}
	}
	if err := s.store.Check(ctx); err != nil {
		return fmt.Errorf("%w: bucket %s: %v", crawler.ErrConfiguration, s.cfg.Bucket, err)
	}
	return nil
}

// AnnounceThreads writes a manifest object per thread.
func (s *Sink) AnnounceThreads(ctx context.Context, threads map[int]crawler.ThreadRequest) error {
	if !s.cfg.ReadOnly {
		for version, req := range threads {
			data, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal thread %d: %w", version, err)
			}
			name := s.objectName(path.Join(crawler.ThreadDirName(version), manifestName))
			if err := s.store.Put(ctx, name, data); err != nil {
				return fmt.Errorf("write thread manifest: %w", err)
			}
		}
	}
	s.versions.Announce(threads)
	return nil
}

// Post uploads record, replacing any earlier copy.
func (s *Sink) Post(ctx context.Context, record crawler.PostRecord) error {
	if s.cfg.ReadOnly {
		return errors.New("gcs sink is read-only")
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
	return s.store.Put(ctx, s.objectName(crawler.PostObjectPath(version, record.Page, record.Number)), data)
}

// Enumerate lists every post object under the prefix. Other objects are ignored.
func (s *Sink) Enumerate(ctx context.Context) (crawler.ArchiveIndex, error) {
	listPrefix := ""
	if s.cfg.Prefix != "" {
		listPrefix = s.cfg.Prefix + "/"
	}
	names, err := s.store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	idx := crawler.ArchiveIndex{}
	for _, name := range names {
		version, page, number, err := crawler.ParsePostObjectPath(strings.TrimPrefix(name, listPrefix))
		if err != nil {
			continue
		}
		idx.Add(version, page, number)
	}
	idx.Sort()
	return idx, nil
}

// Read downloads one stored post.
func (s *Sink) Read(ctx context.Context, version, page int, number string) (crawler.PostRecord, error) {
	if err := crawler.ValidatePostKey(version, page, number); err != nil {
		return crawler.PostRecord{}, err
	}
	data, err := s.store.Get(ctx, s.objectName(crawler.PostObjectPath(version, page, number)))
	if err != nil {
		return crawler.PostRecord{}, err
	}
	var record crawler.PostRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return crawler.PostRecord{}, fmt.Errorf("decode post: %w", err)
	}
	return record, nil
}

// Close releases the storage client.
func (s *Sink) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Sink) objectName(rel string) string {
	if s.cfg.Prefix == "" {
		return rel
	}
	return s.cfg.Prefix + "/" + rel
}

type bucketStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func (b *bucketStore) Check(ctx context.Context) error {
	_, err := b.bucket.Attrs(ctx)
	return err
}

func (b *bucketStore) Put(ctx context.Context, name string, data []byte) error {
	writer := b.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (b *bucketStore) Get(ctx context.Context, name string) ([]byte, error) {
	reader, err := b.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", crawler.ErrPostNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (b *bucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
}

func (b *bucketStore) Close() error {
	return b.client.Close()
}
