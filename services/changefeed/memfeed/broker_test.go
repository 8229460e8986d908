package memfeed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/core/livesync"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker(2, nil)
	ctx := context.Background()

	tasks, err := b.Subscribe(ctx, "tasks-u1", "tasks")
	require.NoError(t, err)
	msgs, err := b.Subscribe(ctx, "global-chat", "messages")
	require.NoError(t, err)
	assert.Equal(t, livesync.StatusConnected, <-tasks.Status())
	assert.Equal(t, 2, b.Subscribers())
	assert.Equal(t, 1, b.Subscribers("tasks-u1"))

	b.Publish(livesync.Change{Table: "tasks", Op: livesync.OpInsert, ID: "t1"})
	b.Publish(livesync.Change{Table: "messages", Op: livesync.OpInsert, ID: "m1"})

	assert.Equal(t, "t1", (<-tasks.Changes()).ID)
	assert.Equal(t, "m1", (<-msgs.Changes()).ID)
	assert.Len(t, tasks.Changes(), 0)
}

func TestBroker_lagging(t *testing.T) {
	b := NewBroker(1, nil)
	sub, err := b.Subscribe(context.Background(), "global-chat")
	require.NoError(t, err)
	<-sub.Status() // connected

	b.Publish(livesync.Change{Table: "messages", ID: "m1"})
	b.Publish(livesync.Change{Table: "messages", ID: "m2"}) // dropped

	assert.Equal(t, "m1", (<-sub.Changes()).ID)
	assert.Equal(t, livesync.StatusLagged, <-sub.Status())
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	b := NewBroker(1, nil)
	sub, err := b.Subscribe(context.Background(), "global-chat")
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers())

	_, ok := <-sub.Changes()
	assert.False(t, ok)

	// publishing after close must not panic
	b.Publish(livesync.Change{Table: "messages", ID: "m1"})

	require.NoError(t, b.Close())
	_, err = b.Subscribe(context.Background(), "global-chat")
	assert.Equal(t, ErrClosed, err)
}
