// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/forum-archiver/internal/app"
	"github.com/JakeFAU/forum-archiver/internal/config"
	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/publisher/memory"
	"github.com/JakeFAU/forum-archiver/internal/storage"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, errors.New("not used")
}

type failingPublisher struct {
	*memory.Publisher
}

func (failingPublisher) Close() error {
	return errors.New("flush failed")
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func mockRegistry(t *testing.T, sink *storage.MockSink) *storage.Registry {
	t.Helper()
	r := storage.NewRegistry()
	require.NoError(t, r.Register(storage.Entry{
		Name:      "Mock",
		ShortName: "mock",
		New:       func(storage.Options) (crawler.Sink, error) { return sink, nil },
	}))
	return r
}

func TestNew_Success(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Sink.Name = "json"
	cfg.Sink.Output = filepath.Join(t.TempDir(), "out")

	core, logs := observer.New(zap.InfoLevel)
	a, err := app.New(context.Background(), cfg, zap.New(core), app.Options{Fetcher: stubFetcher{}})
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Sink)
	assert.IsType(t, &memory.Publisher{}, a.Publisher)
	assert.Equal(t, 1, logs.FilterMessage("Application services initialized").Len())
	require.NoError(t, a.Close())
}

func TestNew_TopicWithoutProjectRetainsRecentNotifications(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Sink.Name = "json"
	cfg.Sink.Output = filepath.Join(t.TempDir(), "out")
	cfg.Publish.Topic = "archived-posts"

	core, logs := observer.New(zap.InfoLevel)
	a, err := app.New(context.Background(), cfg, zap.New(core), app.Options{Fetcher: stubFetcher{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	entries := logs.FilterMessage("Recording recent post notifications in memory").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1000), entries[0].ContextMap()["retained"])

	pub, ok := a.Publisher.(*memory.Publisher)
	require.True(t, ok)
	for i := 0; i < 1500; i++ {
		_, err := pub.Publish(context.Background(), cfg.Publish.Topic, i)
		require.NoError(t, err)
	}
	msgs := pub.Messages()
	require.Len(t, msgs, 1000)
	assert.Equal(t, "memory-1500", msgs[len(msgs)-1].ID)
}

func TestNew_ReadOnlySkipsEngine(t *testing.T) {
	sink := &storage.MockSink{}
	sink.On("Initialize", mock.Anything).Return(nil)
	sink.On("Close").Return(nil)

	cfg := baseConfig(t)
	cfg.Sink.Name = "mock"
	a, err := app.New(context.Background(), cfg, nil, app.Options{
		ReadOnly: true,
		Registry: mockRegistry(t, sink),
	})
	require.NoError(t, err)
	assert.Nil(t, a.Engine)
	assert.Nil(t, a.Publisher)
	require.NoError(t, a.Close())
	sink.AssertExpectations(t)
}

func TestNew_UnknownSink(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Sink.Name = "carrier-pigeon"
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	assert.ErrorIs(t, err, crawler.ErrConfiguration)
}

func TestNew_InitializeFailureClosesSink(t *testing.T) {
	sink := &storage.MockSink{}
	sink.On("Initialize", mock.Anything).Return(crawler.ErrConfiguration)
	sink.On("Close").Return(nil)

	cfg := baseConfig(t)
	cfg.Sink.Name = "mock"
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registry: mockRegistry(t, sink)})
	require.ErrorIs(t, err, crawler.ErrConfiguration)
	assert.Contains(t, err.Error(), "initialize mock sink")
	sink.AssertExpectations(t)
}

func TestClose_JoinsErrors(t *testing.T) {
	sink := &storage.MockSink{}
	sink.On("Initialize", mock.Anything).Return(nil)
	sink.On("Close").Return(errors.New("disk gone"))

	cfg := baseConfig(t)
	cfg.Sink.Name = "mock"
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{
		Registry:  mockRegistry(t, sink),
		Fetcher:   stubFetcher{},
		Publisher: failingPublisher{memory.New()},
	})
	require.NoError(t, err)

	err = a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Contains(t, err.Error(), "flush failed")
}
