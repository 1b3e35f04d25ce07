package llm

import (
	"context"

	"fable/internal/logging"
	"fable/internal/session"
	"fable/internal/tools"
	"fable/internal/types"
)

// DefaultToolCallRetries bounds how often a turn is re-asked when the model
// produces malformed tool invocations.
const DefaultToolCallRetries = 5

// ToolCallError reports that the model kept producing malformed tool
// invocations after every retry. The conversation tail should be repaired
// with PurgeToLastToolCalls before another turn is attempted.
type ToolCallError struct {
	// LastInvalid is the final malformed message, kept for diagnostics.
	// It was never written to the store.
	LastInvalid types.Message
}

func (e *ToolCallError) Error() string {
	return "too many invalid tool calls"
}

// Gateway wraps a Client with the malformed-output retry policy. Malformed
// messages accumulate in a transient buffer appended to the next attempt's
// input so the model can see and correct its mistake; they are never
// persisted. A valid message is appended to the store before it is returned.
type Gateway struct {
	client  Client
	retries int
}

func NewGateway(client Client, retries int) *Gateway {
	if retries <= 0 {
		retries = DefaultToolCallRetries
	}
	return &Gateway{client: client, retries: retries}
}

// Invoke asks the model for the next turn using blocking completion.
func (g *Gateway) Invoke(ctx context.Context, store session.Store, defs []tools.Definition, parallel bool) (types.Message, error) {
	return g.run(ctx, store, defs, parallel, nil)
}

// Stream asks the model for the next turn in streaming mode, forwarding text
// fragments through onText as they arrive.
func (g *Gateway) Stream(ctx context.Context, store session.Store, defs []tools.Definition, parallel bool, onText func(fragment string)) (types.Message, error) {
	if onText == nil {
		onText = func(string) {}
	}
	return g.run(ctx, store, defs, parallel, onText)
}

func (g *Gateway) run(ctx context.Context, store session.Store, defs []tools.Definition, parallel bool, onText func(string)) (types.Message, error) {
	logger := logging.NewSessionLogger("gateway", store.ID())
	var invalid []types.Message

	for attempt := 0; attempt < g.retries; attempt++ {
		req := Request{
			Messages:          append(store.WindowedHistory(ctx), invalid...),
			Tools:             defs,
			ParallelToolCalls: parallel,
		}

		var msg types.Message
		var err error
		if onText != nil {
			msg, err = g.client.StreamComplete(ctx, req, onText)
		} else {
			msg, err = g.client.Complete(ctx, req)
		}
		if err != nil {
			return types.Message{}, err
		}

		if len(msg.InvalidToolCalls) > 0 {
			invalid = append(invalid, msg)
			logger.Error("attempt %d/%d returned %d invalid tool calls",
				attempt+1, g.retries, len(msg.InvalidToolCalls))
			continue
		}

		store.Append(ctx, msg)
		return msg, nil
	}

	logger.Error("giving up after %d invalid tool call attempts", g.retries)
	return types.Message{}, &ToolCallError{LastInvalid: invalid[len(invalid)-1]}
}
