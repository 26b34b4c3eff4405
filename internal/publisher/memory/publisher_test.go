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
	id1, err := pub.Publish(context.Background(), "catalog-runs", map[string]int{"written": 6})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "catalog-alerts", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "catalog-runs", msgs[0].Topic)
	assert.JSONEq(t, `{"written":6}`, string(msgs[0].Data))

	var got map[string]int
	require.NoError(t, msgs[0].Decode(&got))
	assert.Equal(t, 6, got["written"])

	msgs[0].Topic = "modified"
	assert.Equal(t, "catalog-runs", pub.Messages()[0].Topic, "Messages must return a copy")
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.Error(t, err)
	assert.Empty(t, pub.Messages())
}
