package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

// MockSink is a mock implementation of crawler.Sink for testing.
type MockSink struct {
	mock.Mock
}

// Initialize is the mock implementation of the Initialize method.
func (m *MockSink) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0) //nolint:wrapcheck
}

// AnnounceThreads is the mock implementation of the AnnounceThreads method.
func (m *MockSink) AnnounceThreads(ctx context.Context, threads map[int]crawler.ThreadRequest) error {
	args := m.Called(ctx, threads)
	return args.Error(0) //nolint:wrapcheck
}

// Post is the mock implementation of the Post method.
func (m *MockSink) Post(ctx context.Context, record crawler.PostRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0) //nolint:wrapcheck
}

// Enumerate is the mock implementation of the Enumerate method.
func (m *MockSink) Enumerate(ctx context.Context) (crawler.ArchiveIndex, error) {
	args := m.Called(ctx)
	idx, _ := args.Get(0).(crawler.ArchiveIndex)
	return idx, args.Error(1) //nolint:wrapcheck
}

// Read is the mock implementation of the Read method.
func (m *MockSink) Read(ctx context.Context, version, page int, number string) (crawler.PostRecord, error) {
	args := m.Called(ctx, version, page, number)
	rec, _ := args.Get(0).(crawler.PostRecord)
	return rec, args.Error(1) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockSink) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
