package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Non-2xx responses
// are returned, not treated as errors, so callers can inspect challenge pages.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sink persists post records and reads them back.
type Sink interface {
	// Initialize validates or creates the storage location.
	Initialize(ctx context.Context) error
	// AnnounceThreads registers every thread before any post is written.
	AnnounceThreads(ctx context.Context, threads map[int]ThreadRequest) error
	// Post durably writes one record keyed by version, page and number.
	Post(ctx context.Context, record PostRecord) error
	// Enumerate lists every stored post.
	Enumerate(ctx context.Context) (ArchiveIndex, error)
	// Read loads a single stored post.
	Read(ctx context.Context, version, page int, number string) (PostRecord, error)
	Close() error
}

// Publisher pushes post notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Throttle blocks until a request to url may proceed.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
