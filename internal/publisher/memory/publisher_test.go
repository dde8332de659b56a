package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "posts", map[string]int{"page": 2})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "posts", msgs[0].Topic)
	assert.JSONEq(t, `{"page":2}`, string(msgs[0].Data))
	assert.Equal(t, "audit", msgs[1].Topic)
	assert.Equal(t, `"payload"`, string(msgs[1].Data))

	msgs[0].Topic = "modified"
	assert.Equal(t, "posts", pub.Messages()[0].Topic, "Messages() must return a copy")
	assert.NoError(t, pub.Close())
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "posts", make(chan int))
	require.Error(t, err)
	assert.Empty(t, pub.Messages())
}

func TestBoundedPublisherKeepsMostRecent(t *testing.T) {
	t.Parallel()

	pub := NewBounded(3)
	var last string
	for i := 1; i <= 10; i++ {
		id, err := pub.Publish(context.Background(), "posts", i)
		require.NoError(t, err)
		last = id
	}
	assert.Equal(t, "memory-10", last, "IDs keep counting past the limit")

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "memory-8", msgs[0].ID)
	assert.Equal(t, "8", string(msgs[0].Data))
	assert.Equal(t, "memory-10", msgs[2].ID)
	assert.LessOrEqual(t, cap(pub.messages), 4)
}
