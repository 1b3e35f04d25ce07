package session

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/types"
)

// redisClient connects to the address in FABLE_TEST_REDIS, skipping the test
// when unset.
func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("FABLE_TEST_REDIS")
	if addr == "" {
		t.Skip("FABLE_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreRoundTrip(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	store := NewRedisStore("test-"+uuid.NewString(), rdb, DefaultHumanCap)
	defer store.Clear(ctx)

	store.Append(ctx, types.NewHumanMessage("hello"))
	store.Append(ctx, types.NewAIMessage("hi"))

	require.Equal(t, 2, store.Len(ctx))
	last, ok := store.LastMessage(ctx)
	require.True(t, ok)
	assert.Equal(t, "hi", last.Content)

	store.DeleteFromEnd(ctx, 1)
	last, ok = store.LastMessage(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", last.Content)

	store.SetContext(ctx, "env", map[string]any{"tag": "prod"})
	value, ok := store.Context(ctx, "env")
	require.True(t, ok)
	env, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "prod", env["tag"])
}

func TestRedisStorePurgeToLastToolCalls(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	store := NewRedisStore("test-"+uuid.NewString(), rdb, DefaultHumanCap)
	defer store.Clear(ctx)

	store.Append(ctx, types.NewHumanMessage("do it"))
	ai := types.NewAIMessage("")
	ai.ToolCalls = []types.ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{}}}
	store.Append(ctx, ai)
	store.Append(ctx, types.NewToolMessage("result", "search", "c1"))

	store.PurgeToLastToolCalls(ctx)
	require.Equal(t, 1, store.Len(ctx))
	last, _ := store.LastMessage(ctx)
	assert.Equal(t, types.RoleHuman, last.Role)
}

func TestHistoryManagerRoundTrip(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	manager := NewHistoryManager(rdb, nil, 3)
	user := "user-" + uuid.NewString()

	var ids []string
	for i := 0; i < 4; i++ {
		sessionID := "sess-" + uuid.NewString()
		ids = append(ids, sessionID)
		manager.SaveInteraction(ctx, sessionID, "write a story", []string{"data: chapter"}, user)
	}
	defer func() {
		for _, id := range ids {
			manager.ClearSessionHistory(ctx, id)
		}
		manager.ClearUserSessions(ctx, user)
	}()

	// The list is capped and newest first.
	sessions := manager.UserSessions(ctx, user, 0)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[3], sessions[0])

	history := manager.SessionHistory(ctx, ids[3], 10)
	require.Len(t, history, 1)
	assert.Equal(t, "write a story", history[0].UserInput)

	// No title func: the default timestamp title was stored.
	assert.Contains(t, manager.SessionTitle(ctx, ids[3]), "Conversation")
}
