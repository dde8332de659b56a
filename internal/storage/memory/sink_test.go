package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

func TestSinkRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := New()
	require.NoError(t, sink.Initialize(ctx))
	require.NoError(t, sink.AnnounceThreads(ctx, map[int]crawler.ThreadRequest{4: {Version: 4, ThreadID: 77}}))

	want := crawler.PostRecord{Thread: 77, Page: 1, Number: "3", ID: 9, Ratings: map[string]int{"winner": 1}}
	require.NoError(t, sink.Post(ctx, want))
	want.Ratings["winner"] = 5

	got, err := sink.Read(ctx, 4, 1, "3")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Ratings["winner"], "stored copy must not alias the caller's map")

	_, err = sink.Read(ctx, 4, 1, "4")
	assert.ErrorIs(t, err, crawler.ErrPostNotFound)
	assert.NoError(t, sink.Close())
}

func TestSinkConcurrentPosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := New()
	require.NoError(t, sink.AnnounceThreads(ctx, map[int]crawler.ThreadRequest{1: {Version: 1, ThreadID: 5}}))

	var wg sync.WaitGroup
	for page := 1; page <= 4; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			for n := 1; n <= 10; n++ {
				rec := crawler.PostRecord{Thread: 5, Page: page, Number: string(rune('0' + n%10))}
				assert.NoError(t, sink.Post(ctx, rec))
			}
		}(page)
	}
	wg.Wait()

	idx, err := sink.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, idx.Count())
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, idx[1][2])
	assert.Equal(t, 40, sink.Len())
}

func TestSinkRejectsUnannouncedThread(t *testing.T) {
	t.Parallel()

	err := New().Post(context.Background(), crawler.PostRecord{Thread: 1, Page: 1, Number: "1"})
	assert.ErrorIs(t, err, crawler.ErrUnknownThread)
}
