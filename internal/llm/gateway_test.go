package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/session"
	"fable/internal/types"
)

func invalidMessage(id string) types.Message {
	msg := types.NewAIMessage("")
	msg.InvalidToolCalls = []types.ToolCall{{ID: id, Name: "broken", Arguments: map[string]any{"raw": "{"}}}
	return msg
}

func TestGatewayAppendsValidMessage(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore("g1", session.DefaultHumanCap)
	store.Append(ctx, types.NewHumanMessage("hello"))

	client := &MockClient{Responses: []types.Message{types.NewAIMessage("world")}}
	gateway := NewGateway(client, 5)

	msg, err := gateway.Invoke(ctx, store, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "world", msg.Content)

	last, ok := store.LastMessage(ctx)
	require.True(t, ok)
	assert.Equal(t, "world", last.Content)
}

func TestGatewayRetriesMalformedOutput(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore("g2", session.DefaultHumanCap)
	store.Append(ctx, types.NewHumanMessage("hello"))

	client := &MockClient{Responses: []types.Message{
		invalidMessage("i1"),
		invalidMessage("i2"),
		types.NewAIMessage("recovered"),
	}}
	gateway := NewGateway(client, 5)

	msg, err := gateway.Invoke(ctx, store, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "recovered", msg.Content)
	require.Len(t, client.Calls, 3)

	// The second attempt sees the first malformed message in its input.
	second := client.Calls[1].Messages
	require.Len(t, second, 2)
	assert.Len(t, second[1].InvalidToolCalls, 1)

	// Only the valid message reached the store.
	all := store.AllMessages(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "recovered", all[1].Content)
}

func TestGatewayExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore("g3", session.DefaultHumanCap)
	store.Append(ctx, types.NewHumanMessage("hello"))

	client := &MockClient{Responses: []types.Message{
		invalidMessage("i1"), invalidMessage("i2"), invalidMessage("i3"),
		invalidMessage("i4"), invalidMessage("i5"),
	}}
	gateway := NewGateway(client, 5)

	_, err := gateway.Invoke(ctx, store, nil, false)
	var tcErr *ToolCallError
	require.ErrorAs(t, err, &tcErr)
	assert.Equal(t, "i5", tcErr.LastInvalid.InvalidToolCalls[0].ID)
	assert.Len(t, client.Calls, 5)

	// None of the malformed messages were persisted.
	recent := store.RecentMessages(ctx, 10)
	require.Len(t, recent, 1)
	assert.Equal(t, types.RoleHuman, recent[0].Role)
}

func TestGatewayStreamForwardsFragments(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore("g4", session.DefaultHumanCap)
	store.Append(ctx, types.NewHumanMessage("hello"))

	client := &MockClient{
		Responses:  []types.Message{types.NewAIMessage("hi there")},
		StreamText: map[int][]string{0: {"hi ", "there"}},
	}
	gateway := NewGateway(client, 5)

	var got []string
	msg, err := gateway.Stream(ctx, store, nil, false, func(fragment string) {
		got = append(got, fragment)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi ", "there"}, got)
	assert.Equal(t, "hi there", msg.Content)
}

func TestParseArgumentsRepairsJSON(t *testing.T) {
	args, ok := parseArguments(`{"path": "/a",}`)
	require.True(t, ok)
	assert.Equal(t, "/a", args["path"])

	args, ok = parseArguments("")
	require.True(t, ok)
	assert.Empty(t, args)
}
