package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	checkErr error
	closed   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Check(context.Context) error { return f.checkErr }

func (f *fakeStore) Put(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) Get(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crawler.ErrPostNotFound, name)
	}
	return data, nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

var threads = map[int]crawler.ThreadRequest{
	4: {Version: 4, URL: "http://facepunch.com/showthread.php?t=400", ThreadID: 400},
}

func newFakeSink(t *testing.T, cfg Config, store *fakeStore) *Sink {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	s.store = store
	return s
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, crawler.ErrConfiguration)
	_, err = NewWithClient(nil, Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestInitializeReportsMissingBucket(t *testing.T) {
	store := newFakeStore()
	store.checkErr = storage.ErrBucketNotExist
	err := newFakeSink(t, Config{Bucket: "archive"}, store).Initialize(context.Background())
	assert.ErrorIs(t, err, crawler.ErrConfiguration)
}

func TestPostEnumerateRead(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sink := newFakeSink(t, Config{Bucket: "archive", Prefix: "/runs/2013/"}, store)
	require.NoError(t, sink.Initialize(ctx))
	require.NoError(t, sink.AnnounceThreads(ctx, threads))
	assert.Contains(t, store.objects, "runs/2013/thread4/thread.json")

	for _, number := range []string{"12", "3"} {
		require.NoError(t, sink.Post(ctx, crawler.PostRecord{Thread: 400, Page: 1, Number: number, Ratings: map[string]int{}}))
	}
	require.NoError(t, sink.Post(ctx, crawler.PostRecord{Thread: 400, Page: 2, Number: "31", ID: 9}))
	assert.Contains(t, store.objects, "runs/2013/thread4/page2/post31.json")
	store.objects["runs/2013/notes.txt"] = []byte("x")
	store.objects["elsewhere/thread1/page1/post1.json"] = []byte("{}")

	idx, err := sink.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.ArchiveIndex{4: {1: {"3", "12"}, 2: {"31"}}}, idx)

	got, err := sink.Read(ctx, 4, 2, "31")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)

	_, err = sink.Read(ctx, 4, 2, "32")
	assert.ErrorIs(t, err, crawler.ErrPostNotFound)

	assert.ErrorIs(t, sink.Post(ctx, crawler.PostRecord{Thread: 1, Page: 1, Number: "1"}), crawler.ErrUnknownThread)

	require.NoError(t, sink.Close())
	assert.True(t, store.closed)
}

func TestReadOnlySkipsManifestAndRejectsPosts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sink := newFakeSink(t, Config{Bucket: "archive", ReadOnly: true}, store)
	require.NoError(t, sink.AnnounceThreads(ctx, threads))
	assert.Empty(t, store.objects)
	assert.Error(t, sink.Post(ctx, crawler.PostRecord{Thread: 400, Page: 1, Number: "1"}))
}

func TestBucketStoreUploadsPost(t *testing.T) {
	var (
		mu      sync.Mutex
		uploads []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `"thread`)
		name := r.URL.Query().Get("name")
		mu.Lock()
		uploads = append(uploads, name)
		mu.Unlock()
		fmt.Fprintln(w, `{ "name": "`+name+`", "bucket": "archive" }`)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	sink, err := NewWithClient(client, Config{Bucket: "archive"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.AnnounceThreads(ctx, threads))
	require.NoError(t, sink.Post(ctx, crawler.PostRecord{Thread: 400, Page: 1, Number: "1"}))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"thread4/thread.json", "thread4/page1/post1.json"}, uploads)
}

func TestBucketStoreFailedUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	store := &bucketStore{client: client, bucket: client.Bucket("archive")}
	defer func() { _ = store.Close() }()

	err = store.Put(context.Background(), "thread1/page1/post1.json", []byte("{}"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, crawler.ErrPostNotFound))
}
