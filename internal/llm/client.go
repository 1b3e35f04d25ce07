// Package llm wraps the model provider behind a small client interface and
// adds the gateway retry policy for malformed tool invocations.
package llm

import (
	"context"

	"fable/internal/tools"
	"fable/internal/types"
)

// Request is one model invocation: the message history, the tool schemas the
// model may call, and whether it may request several tools in one turn.
type Request struct {
	Messages          []types.Message
	Tools             []tools.Definition
	ParallelToolCalls bool
}

// Client performs exactly one model call per invocation. Implementations
// handle transport concerns (auth, retry on transient failures); they do not
// retry on malformed tool calls, which is the gateway's job.
type Client interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req Request) (types.Message, error)

	// StreamComplete performs a streaming completion, delivering text
	// fragments through onText as they arrive and returning the
	// accumulated final message.
	StreamComplete(ctx context.Context, req Request, onText func(fragment string)) (types.Message, error)
}
