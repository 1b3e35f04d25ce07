package types

// StreamItemKind discriminates the heterogeneous elements the agent loop
// emits to its caller.
type StreamItemKind string

const (
	// StreamText is an incremental fragment of model output.
	StreamText StreamItemKind = "text"
	// StreamToolMessage is a completed, non-final tool result.
	StreamToolMessage StreamItemKind = "tool_message"
	// StreamConfirmRequest carries pending confirmations; the loop has
	// suspended and must be re-entered with feedback.
	StreamConfirmRequest StreamItemKind = "tool_call"
	// StreamFinalAnswer is the parsed payload of the final tool.
	StreamFinalAnswer StreamItemKind = "final_answer"
)

// StreamItem is one element of the loop output stream. Exactly the fields
// implied by Kind are set.
type StreamItem struct {
	Kind    StreamItemKind
	Text    string
	Tool    *Message
	Pending []ToolCallToConfirm
	Answer  any
}

func TextItem(text string) StreamItem {
	return StreamItem{Kind: StreamText, Text: text}
}

func ToolMessageItem(msg Message) StreamItem {
	return StreamItem{Kind: StreamToolMessage, Tool: &msg}
}

func ConfirmRequestItem(pending []ToolCallToConfirm) StreamItem {
	return StreamItem{Kind: StreamConfirmRequest, Pending: pending}
}

func FinalAnswerItem(answer any) StreamItem {
	return StreamItem{Kind: StreamFinalAnswer, Answer: answer}
}
