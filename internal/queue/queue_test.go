package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "broadcast", Body: json.RawMessage(`{"text":"a|b"}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "broadcast", msg.Type)
	assert.JSONEq(t, `{"text":"a|b"}`, string(msg.Body))

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "y"}), context.DeadlineExceeded)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "", nil)
	require.NoError(t, q.Publish(ctx, Message{Type: "broadcast", Body: json.RawMessage(`{"id":"1"}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "broadcast", Body: json.RawMessage(`{"id":"2"}`)}))
	require.NoError(t, client.LPush(ctx, DefaultKey, "not json").Err())
	require.NoError(t, q.Publish(ctx, Message{Type: "broadcast", Body: json.RawMessage(`{"id":"3"}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(receive(t, ch).Body))
	assert.JSONEq(t, `{"id":"2"}`, string(receive(t, ch).Body))
	assert.JSONEq(t, `{"id":"3"}`, string(receive(t, ch).Body))
}

func TestNewBackends(t *testing.T) {
	q, err := New("memory", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemory{}, q)

	_, err = New("redis", nil, nil)
	assert.Error(t, err)

	_, err = New("kafka", nil, nil)
	assert.Error(t, err)
}
