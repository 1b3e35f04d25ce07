package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/types"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore("test-session", DefaultHumanCap)
}

func TestAppendAndRecentMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("hello"))
	store.Append(ctx, types.NewAIMessage("hi there"))

	recent := store.RecentMessages(ctx, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, types.RoleAI, recent[0].Role)
	assert.Equal(t, "hi there", recent[0].Content)

	all := store.AllMessages(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "hello", all[0].Content)
}

func TestAppendDropsInvalidToolCallMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	bad := types.NewAIMessage("")
	bad.InvalidToolCalls = []types.ToolCall{{ID: "x", Name: "broken"}}
	store.Append(ctx, bad)

	assert.Equal(t, 0, store.Len(ctx))
}

func TestWindowedHistoryCapsHumanMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("s", 3)

	store.Append(ctx, types.NewSystemMessage("system prompt"))
	for i := 0; i < 8; i++ {
		store.Append(ctx, types.NewHumanMessage(fmt.Sprintf("human %d", i)))
		store.Append(ctx, types.NewAIMessage(fmt.Sprintf("answer %d", i)))
	}

	window := store.WindowedHistory(ctx)

	humans := 0
	for _, msg := range window {
		if msg.Role == types.RoleHuman {
			humans++
		}
	}
	assert.Equal(t, 3, humans)

	// The system message predates the window but survives it.
	assert.Equal(t, types.RoleSystem, window[0].Role)
	assert.Equal(t, "system prompt", window[0].Content)

	// Everything after the system message belongs to the window tail.
	for _, msg := range window[1:] {
		assert.NotEqual(t, types.RoleSystem, msg.Role)
	}
	assert.Equal(t, "answer 4", window[1].Content)
}

func TestWindowedHistoryUnderCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("only one"))
	store.Append(ctx, types.NewAIMessage("reply"))

	window := store.WindowedHistory(ctx)
	assert.Len(t, window, 2)
}

func TestDeleteFromEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("first"))
	store.Append(ctx, types.NewAIMessage("second"))
	store.Append(ctx, types.NewAIMessage("third"))

	store.DeleteFromEnd(ctx, 1)

	// Dropping the tail exposes the former second-to-last message.
	last, ok := store.LastMessage(ctx)
	require.True(t, ok)
	assert.Equal(t, "second", last.Content)
	assert.Equal(t, 2, store.Len(ctx))

	// Beyond the length is ignored.
	store.DeleteFromEnd(ctx, 5)
	assert.Equal(t, 2, store.Len(ctx))
}

func TestTruncateLastK(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	for i := 0; i < 4; i++ {
		store.Append(ctx, types.NewAIMessage(fmt.Sprintf("msg %d", i)))
	}

	store.TruncateLastK(ctx, 2)
	assert.Equal(t, 2, store.Len(ctx))
	last, _ := store.LastMessage(ctx)
	assert.Equal(t, "msg 1", last.Content)

	// Larger than the remaining length empties the store.
	store.TruncateLastK(ctx, 10)
	assert.Equal(t, 0, store.Len(ctx))
	_, ok := store.LastMessage(ctx)
	assert.False(t, ok)
}

func TestUpdateFromEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewAIMessage("a"))
	store.Append(ctx, types.NewAIMessage("b"))
	store.Append(ctx, types.NewAIMessage("c"))

	store.UpdateFromEnd(ctx, 2, types.NewAIMessage("B"))

	all := store.AllMessages(ctx)
	assert.Equal(t, "a", all[0].Content)
	assert.Equal(t, "B", all[1].Content)
	assert.Equal(t, "c", all[2].Content)
}

func TestPurgeToLastToolCalls(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("do the thing"))
	withTools := types.NewAIMessage("")
	withTools.ToolCalls = []types.ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{"q": "x"}}}
	store.Append(ctx, withTools)
	store.Append(ctx, types.NewToolMessage("result", "search", "c1"))
	store.Append(ctx, types.NewAIMessage("final answer"))

	store.PurgeToLastToolCalls(ctx)

	all := store.AllMessages(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "do the thing", all[0].Content)
}

func TestPurgeToLastToolCallsWithoutToolCalls(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("hi"))
	store.Append(ctx, types.NewAIMessage("hello"))

	store.PurgeToLastToolCalls(ctx)
	assert.Equal(t, 2, store.Len(ctx))
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, ok := store.Context(ctx, "env")
	assert.False(t, ok)

	store.SetContext(ctx, "env", "prod")
	value, ok := store.Context(ctx, "env")
	require.True(t, ok)
	assert.Equal(t, "prod", value)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.Append(ctx, types.NewHumanMessage("hi"))
	store.SetContext(ctx, "k", "v")
	store.Clear(ctx)

	assert.Equal(t, 0, store.Len(ctx))

	// The context side-table is independent of the conversation.
	v, ok := store.Context(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestManagerReturnsSameStore(t *testing.T) {
	manager, err := NewManager(ManagerConfig{Backend: BackendMemory, HumanCap: DefaultHumanCap, CacheSize: 8})
	require.NoError(t, err)

	a := manager.Get("abc")
	b := manager.Get("abc")
	assert.Same(t, a.(*MemoryStore), b.(*MemoryStore))

	c := manager.Get("other")
	assert.NotSame(t, a.(*MemoryStore), c.(*MemoryStore))
}

func TestManagerRejectsUnknownBackend(t *testing.T) {
	_, err := NewManager(ManagerConfig{Backend: "bogus"})
	assert.Error(t, err)
}
