package session

import (
	"context"

	"fable/internal/types"
)

// DefaultHumanCap bounds the number of Human messages kept in the windowed
// history used as model input.
const DefaultHumanCap = 30

// Store is an ordered, append-mostly conversation backing a single session.
//
// The store absorbs backend failures internally: mutations that the backend
// rejects and entries that fail to deserialize are logged and skipped, never
// surfaced to callers. Out-of-range indices are ignored. A store instance is
// not safe for concurrent turns on the same session; callers serialize per
// session id.
type Store interface {
	// ID returns the session identifier this store is bound to.
	ID() string

	// Append adds a message at the tail. AI messages flagged with invalid
	// tool calls are dropped silently; they must never be persisted.
	Append(ctx context.Context, msg types.Message)

	// Messages returns up to n messages from the head in conversation
	// order. n <= 0 yields an empty slice.
	Messages(ctx context.Context, n int) []types.Message

	// RecentMessages returns up to n messages from the tail in conversation
	// order. n <= 0 yields an empty slice.
	RecentMessages(ctx context.Context, n int) []types.Message

	// AllMessages returns the full conversation in order.
	AllMessages(ctx context.Context) []types.Message

	// LastMessage returns the tail message, or false for an empty session.
	LastMessage(ctx context.Context) (types.Message, bool)

	// Len returns the number of stored messages.
	Len(ctx context.Context) int

	// UpdateAt replaces the message at the forward index in place.
	UpdateAt(ctx context.Context, index int, msg types.Message)

	// UpdateFromEnd replaces the k-th message counting from the tail
	// (k=1 is the last message).
	UpdateFromEnd(ctx context.Context, k int, msg types.Message)

	// DeleteFromEnd removes the k-th message counting from the tail
	// (k=1 is the last message). k beyond the conversation length is
	// ignored.
	DeleteFromEnd(ctx context.Context, k int)

	// TruncateLastK drops the last k messages, clamping k to the
	// conversation length.
	TruncateLastK(ctx context.Context, k int)

	// WindowedHistory returns the conversation view used as model input:
	// original order, Human messages capped to the configured budget
	// counting from the tail, System messages always retained.
	WindowedHistory(ctx context.Context) []types.Message

	// PurgeToLastToolCalls truncates the conversation to exclude the most
	// recent AI message carrying tool calls and everything after it. Used
	// to repair a corrupt tail.
	PurgeToLastToolCalls(ctx context.Context)

	// Clear empties the conversation. The context side-table survives.
	Clear(ctx context.Context)

	// SetContext stores an arbitrary key/value in the session side-table.
	SetContext(ctx context.Context, key string, value any)

	// Context reads a value from the session side-table.
	Context(ctx context.Context, key string) (any, bool)
}

// windowMessages applies the Human-message cap shared by all backends.
// Scanning from the tail, once cap Human messages have been seen every older
// message is dropped except System messages, which are always retained in
// their original positions relative to each other.
func windowMessages(messages []types.Message, humanCap int) []types.Message {
	if humanCap <= 0 {
		humanCap = DefaultHumanCap
	}

	cut := 0
	humans := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleHuman {
			humans++
			if humans > humanCap {
				cut = i + 1
				break
			}
		}
	}
	if humans <= humanCap {
		out := make([]types.Message, len(messages))
		copy(out, messages)
		return out
	}

	out := make([]types.Message, 0, len(messages)-cut)
	for _, msg := range messages[:cut] {
		if msg.Role == types.RoleSystem {
			out = append(out, msg)
		}
	}
	return append(out, messages[cut:]...)
}

// lastToolCallIndex finds the most recent AI message carrying tool calls,
// or -1 when none exists.
func lastToolCallIndex(messages []types.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].HasToolCalls() {
			return i
		}
	}
	return -1
}
