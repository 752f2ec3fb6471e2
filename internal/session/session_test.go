package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, 20*time.Minute)
	ctx := context.Background()

	got, err := store.Get(ctx, "whatsapp:+5218110000001")
	require.NoError(t, err)
	assert.Nil(t, got)

	state := &State{Greeted: true, LastDate: "2025-06-16"}
	state.Append(Message{Role: "user", Content: "hola"})
	require.NoError(t, store.Put(ctx, "whatsapp:+5218110000001", state))
	require.NoError(t, store.Put(ctx, "whatsapp:+5218110000002", &State{}))

	got, err = store.Get(ctx, "whatsapp:+5218110000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Greeted)
	assert.Equal(t, "2025-06-16", got.LastDate)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hola", got.Messages[0].Content)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mr.FastForward(21 * time.Minute)
	got, err = store.Get(ctx, "whatsapp:+5218110000001")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreClear(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("c%d", i), &State{}))
	}
	require.NoError(t, client.Set(ctx, "idempotency:x", "1", 0).Err())

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, mr.Exists("idempotency:x"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore(20 * time.Minute)
	now := time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c1", &State{Greeted: true}))
	now = now.Add(19 * time.Minute)
	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	state := &State{}
	state.Append(Message{Role: "user", Content: "a"})
	require.NoError(t, store.Put(ctx, "c1", state))

	state.Messages[0].Content = "mutated"
	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Messages[0].Content)

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppendTrimsToUserTurn(t *testing.T) {
	plain := &State{}
	for i := 0; i < MaxMessages+1; i++ {
		plain.Append(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	require.Len(t, plain.Messages, MaxMessages)
	assert.Equal(t, "m1", plain.Messages[0].Content)

	mixed := &State{}
	for i := 0; i < MaxMessages/2; i++ {
		mixed.Append(
			Message{Role: RoleUser, Content: fmt.Sprintf("u%d", i)},
			Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c", Name: "check_slots"}}},
		)
	}
	mixed.Append(Message{Role: RoleTool, ToolCallID: "c", Content: "{}"})
	require.LessOrEqual(t, len(mixed.Messages), MaxMessages)
	assert.Equal(t, RoleUser, mixed.Messages[0].Role)
	assert.Equal(t, RoleTool, mixed.Messages[len(mixed.Messages)-1].Role)
}
