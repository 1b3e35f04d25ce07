package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"fable/internal/logging"
	"fable/internal/session"
	"fable/internal/types"
)

// Executor runs the tool invocations requested by the conversation tail.
//
// Non-streaming results are returned to the caller, which persists them.
// Streaming tools persist their own result and short-circuit the turn. A nil
// entry in the result slice is the regenerate placeholder: the invocation
// produced nothing and nothing may be persisted for it.
type Executor struct {
	tools  map[string]*Tool
	logger logging.Logger
}

// NewExecutor builds an executor over the given tool set.
func NewExecutor(list []*Tool) *Executor {
	byName := make(map[string]*Tool, len(list))
	for _, tool := range list {
		byName[tool.Name] = tool
	}
	return &Executor{
		tools:  byName,
		logger: logging.NewComponentLogger("executor"),
	}
}

// Execute processes the pending tool invocations on the conversation tail.
//
// If the last message is not an AI message carrying tool calls, it returns
// empty results and empty pending confirmations. Confirmation-gated
// invocations without matching feedback are collected into the pending list
// instead of running. Streaming tools relay chunks through emit, write their
// own result into the store and end the turn with empty/empty.
func (e *Executor) Execute(ctx context.Context, store session.Store, feedback []types.ToolCallToConfirm, emit func(chunk string)) ([]*types.Message, []types.ToolCallToConfirm) {
	if emit == nil {
		emit = func(string) {}
	}

	var results []*types.Message
	var pending []types.ToolCallToConfirm

	last, ok := store.LastMessage(ctx)
	if !ok || last.Role != types.RoleAI || len(last.ToolCalls) == 0 {
		return nil, nil
	}

	for _, call := range last.ToolCalls {
		tool, known := e.tools[call.Name]
		if !known {
			e.logger.Error("unknown tool requested: %s", call.Name)
			results = append(results, e.resultMessage(call, call.Name, map[string]any{
				"error": fmt.Sprintf("unknown tool: %s", call.Name),
			}))
			continue
		}

		args := cloneArgs(call.Arguments)
		// The model must never pick the credential itself.
		if _, inferred := args["auth_token"]; inferred {
			e.logger.Error("drop inferred auth_token argument for %s", call.Name)
			delete(args, "auth_token")
		}

		if tool.RequireConfirm {
			action, edited := resolveAction(call.ID, feedback)
			switch action {
			case types.ActionToConfirm:
				pending = append(pending, types.ToolCallToConfirm{
					Name:   displayLabel(call.Name, args),
					ID:     call.ID,
					Args:   args,
					Action: types.ActionToConfirm,
				})
				continue
			case types.ActionCancelled:
				results = append(results, e.resultMessage(call, call.Name, map[string]any{
					"status":  "cancelled",
					"message": fmt.Sprintf("User cancelled tool call: %s", call.Name),
				}))
				continue
			case types.ActionRegenerate:
				store.DeleteFromEnd(ctx, 1)
				results = append(results, nil)
				continue
			case types.ActionEditedConfirmed:
				args = mergeEditedArgs(args, edited)
			case types.ActionConfirmed:
				// run with the original arguments
			}
		}

		if token, ok := store.Context(ctx, "authorization_token"); ok {
			args["auth_token"] = token
		}
		args["session_id"] = store.ID()

		if tool.Streaming() {
			final, err := tool.StreamHandler(ctx, args, emit)
			if err != nil {
				e.logger.Error("streaming tool %s failed: %v", call.Name, err)
				final = map[string]any{"error": err.Error()}
			}
			store.Append(ctx, *e.resultMessage(call, displayLabel(call.Name, args), final))
			return nil, nil
		}

		value, err := tool.Handler(ctx, args)
		if err != nil {
			e.logger.Error("tool %s failed: %v", call.Name, err)
			value = map[string]any{"error": err.Error()}
		}
		results = append(results, e.resultMessage(call, displayLabel(call.Name, args), value))
	}

	return results, pending
}

func (e *Executor) resultMessage(call types.ToolCall, label string, value any) *types.Message {
	content, err := json.Marshal(value)
	if err != nil {
		e.logger.Error("encode result of %s: %v", call.Name, err)
		content = []byte(fmt.Sprintf("%v", value))
	}
	msg := types.NewToolMessage(string(content), label, call.ID)
	// The display label may shadow the real tool name; keep the latter for
	// final-tool matching.
	msg.SetMetadata("tool_name", call.Name)
	return &msg
}

// ResultToolName returns the invoked tool's real name for a result message,
// regardless of the display label it carries.
func ResultToolName(msg *types.Message) string {
	if name, ok := msg.Metadata["tool_name"].(string); ok && name != "" {
		return name
	}
	return msg.ToolName
}

// resolveAction matches feedback to an invocation id. No match means the
// invocation still awaits confirmation.
func resolveAction(callID string, feedback []types.ToolCallToConfirm) (types.ConfirmAction, map[string]any) {
	for _, entry := range feedback {
		if entry.ID == callID {
			return entry.Action, entry.Args
		}
	}
	return types.ActionToConfirm, nil
}

// mergeEditedArgs overlays edited values onto the original mapping. Only
// keys the model originally supplied may be overridden.
func mergeEditedArgs(original, edited map[string]any) map[string]any {
	if edited == nil {
		return original
	}
	for key, value := range edited {
		if _, exists := original[key]; exists {
			original[key] = value
		}
	}
	return original
}

// displayLabel prefers the model-supplied reason over the raw tool name.
func displayLabel(toolName string, args map[string]any) string {
	if reason, ok := args["reason"].(string); ok && reason != "" {
		return reason
	}
	return toolName
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+2)
	for key, value := range args {
		out[key] = value
	}
	return out
}
