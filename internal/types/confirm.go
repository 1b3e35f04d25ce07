package types

// ConfirmAction is the state of a confirmation-gated tool invocation as
// reported by the external caller.
type ConfirmAction string

const (
	// ActionToConfirm marks an invocation still awaiting a decision.
	ActionToConfirm ConfirmAction = "to_confirm"
	// ActionConfirmed approves execution with the original arguments.
	ActionConfirmed ConfirmAction = "confirmed"
	// ActionEditedConfirmed approves execution with caller-edited arguments.
	ActionEditedConfirmed ConfirmAction = "edited_confirmed"
	// ActionCancelled declines execution; a cancellation tool result is
	// synthesized in its place.
	ActionCancelled ConfirmAction = "cancelled"
	// ActionRegenerate discards the AI turn that requested the invocation
	// so the model can be asked again.
	ActionRegenerate ConfirmAction = "regenerate"
)

// ToolCallToConfirm is the transient record exchanged with the caller while
// a confirmation-gated invocation is pending. It is never persisted to the
// conversation.
type ToolCallToConfirm struct {
	Name   string         `json:"tool_call_name"`
	ID     string         `json:"tool_call_id"`
	Args   map[string]any `json:"tool_call_args"`
	Action ConfirmAction  `json:"tool_confirm_action"`
}
