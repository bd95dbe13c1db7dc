package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	st, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, st.Step)

	st = State{Step: "reg_course"}
	st.Set("name", "Anna Petrova")
	require.NoError(t, s.Put(ctx, 1, st))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "reg_course", got.Step)
	assert.Equal(t, "Anna Petrova", got.Data["name"])

	other, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, other.Step)

	require.NoError(t, s.Clear(ctx, 1))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got.Step)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemory(time.Hour))
}

func TestMemoryStoreExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }
	require.NoError(t, m.Put(context.Background(), 1, State{Step: "notify_text"}))

	now = now.Add(2 * time.Minute)
	st, err := m.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, st.Step)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, time.Hour)
	exercise(t, s)

	require.NoError(t, s.Put(context.Background(), 3, State{Step: "spend_code"}))
	mr.FastForward(2 * time.Hour)
	st, err := s.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, st.Step)

	require.NoError(t, mr.Set("careerquest:session:4", "{not json"))
	st, err = s.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, st.Step)
	assert.False(t, mr.Exists("careerquest:session:4"))
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New("memory", nil, time.Minute)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = New("redis", nil, time.Minute)
	assert.Error(t, err)

	_, err = New("etcd", nil, time.Minute)
	assert.Error(t, err)
}
