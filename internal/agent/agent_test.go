package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/llm"
	"fable/internal/session"
	"fable/internal/tools"
	"fable/internal/types"
)

func aiWithToolCall(name, id string, args map[string]any) types.Message {
	msg := types.NewAIMessage("")
	msg.ToolCalls = []types.ToolCall{{ID: id, Name: name, Arguments: args}}
	return msg
}

func collect(items *[]types.StreamItem) Emit {
	return func(item types.StreamItem) { *items = append(*items, item) }
}

func newTestAgent(client llm.Client, registry *tools.Registry, toolNames []string) *Agent {
	return New(Config{
		Name:      "test_agent",
		Tools:     map[string][]string{tools.DefaultEnv: toolNames},
		FinalTool: "finish_task",
		MaxSteps:  5,
	}, registry, llm.NewGateway(client, 5))
}

func TestCallRejectsAmbiguousInput(t *testing.T) {
	agent := newTestAgent(&llm.MockClient{}, tools.NewRegistry(), nil)
	store := session.NewMemoryStore("a0", session.DefaultHumanCap)

	err := agent.Call(context.Background(), store, "", nil, func(types.StreamItem) {})
	assert.Error(t, err)

	feedback := []types.ToolCallToConfirm{{ID: "x", Action: types.ActionConfirmed}}
	err = agent.Call(context.Background(), store, "input", feedback, func(types.StreamItem) {})
	assert.Error(t, err)
}

func TestCallStreamsPlainAnswer(t *testing.T) {
	client := &llm.MockClient{
		Responses:  []types.Message{types.NewAIMessage("a plain answer")},
		StreamText: map[int][]string{0: {"a plain ", "answer"}},
	}
	agent := newTestAgent(client, tools.NewRegistry(), nil)
	store := session.NewMemoryStore("a1", session.DefaultHumanCap)

	var items []types.StreamItem
	err := agent.Call(context.Background(), store, "hello", nil, collect(&items))
	require.NoError(t, err)

	// Streamed text, then termination with no separate final answer since
	// the answer already streamed.
	require.Len(t, items, 2)
	assert.Equal(t, types.StreamText, items[0].Kind)
	assert.Equal(t, "a plain ", items[0].Text)

	// One model call in total; the loop terminated on the quiet tail.
	assert.Len(t, client.Calls, 1)
}

func TestCallFinalToolTerminatesLoop(t *testing.T) {
	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:       "finish_task",
		Parameters: tools.ObjectSchema(map[string]any{"answer": tools.StringProperty("answer")}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"answer": "done"}, nil
		},
	})

	client := &llm.MockClient{Responses: []types.Message{
		aiWithToolCall("finish_task", "c1", map[string]any{"answer": "done"}),
	}}
	agent := newTestAgent(client, registry, []string{"finish_task"})
	store := session.NewMemoryStore("a2", session.DefaultHumanCap)

	var items []types.StreamItem
	err := agent.Call(context.Background(), store, "do it", nil, collect(&items))
	require.NoError(t, err)

	// Exactly one model call: the final tool short-circuits the loop.
	assert.Len(t, client.Calls, 1)

	require.NotEmpty(t, items)
	final := items[len(items)-1]
	require.Equal(t, types.StreamFinalAnswer, final.Kind)
	answer, ok := final.Answer.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "done", answer["answer"])

	// The final tool's result still lands in the conversation.
	last, ok := store.LastMessage(context.Background())
	require.True(t, ok)
	assert.Equal(t, types.RoleTool, last.Role)
}

func TestCallPausesOnConfirmation(t *testing.T) {
	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:           "delete_file",
		Parameters:     tools.ObjectSchema(map[string]any{"path": tools.StringProperty("path")}),
		RequireConfirm: true,
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return "deleted", nil
		},
	})

	client := &llm.MockClient{Responses: []types.Message{
		aiWithToolCall("delete_file", "c1", map[string]any{"path": "/a"}),
	}}
	agent := newTestAgent(client, registry, []string{"delete_file", "finish_task"})
	store := session.NewMemoryStore("a3", session.DefaultHumanCap)

	var items []types.StreamItem
	err := agent.Call(context.Background(), store, "remove it", nil, collect(&items))
	require.NoError(t, err)

	require.NotEmpty(t, items)
	pause := items[len(items)-1]
	require.Equal(t, types.StreamConfirmRequest, pause.Kind)
	require.Len(t, pause.Pending, 1)
	assert.Equal(t, "c1", pause.Pending[0].ID)
}

func TestCallResumesWithFeedback(t *testing.T) {
	var executed bool
	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:           "delete_file",
		Parameters:     tools.ObjectSchema(map[string]any{"path": tools.StringProperty("path")}),
		RequireConfirm: true,
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			executed = true
			return map[string]any{"status": "deleted"}, nil
		},
	})

	// Conversation already paused: tail is the AI message with the gated
	// call, exactly as a restarted process would read it back.
	store := session.NewMemoryStore("a4", session.DefaultHumanCap)
	store.Append(context.Background(), types.NewHumanMessage("remove it"))
	store.Append(context.Background(), aiWithToolCall("delete_file", "c1", map[string]any{"path": "/a"}))

	client := &llm.MockClient{Responses: []types.Message{
		types.NewAIMessage("the file is gone"),
	}}
	agent := newTestAgent(client, registry, []string{"delete_file"})

	feedback := []types.ToolCallToConfirm{{ID: "c1", Action: types.ActionConfirmed}}
	var items []types.StreamItem
	err := agent.Call(context.Background(), store, "", feedback, collect(&items))
	require.NoError(t, err)

	assert.True(t, executed)
	require.NotEmpty(t, items)
	final := items[len(items)-1]
	assert.Equal(t, types.StreamFinalAnswer, final.Kind)
	assert.Equal(t, "the file is gone", final.Answer)
}

func TestCallStopsAtMaxSteps(t *testing.T) {
	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:       "ping",
		Parameters: tools.ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return "pong", nil
		},
	})

	// The model asks for the same tool forever.
	responses := make([]types.Message, 0, 6)
	for i := 0; i < 6; i++ {
		responses = append(responses, aiWithToolCall("ping", "c", map[string]any{}))
	}
	client := &llm.MockClient{Responses: responses, StreamText: map[int][]string{}}
	agent := newTestAgent(client, registry, []string{"ping"})
	store := session.NewMemoryStore("a5", session.DefaultHumanCap)

	var items []types.StreamItem
	err := agent.Call(context.Background(), store, "loop forever", nil, collect(&items))
	require.NoError(t, err)

	// No terminal signal was emitted.
	for _, item := range items {
		assert.NotEqual(t, types.StreamFinalAnswer, item.Kind)
	}
}
