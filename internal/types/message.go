package types

import "encoding/json"

// Role identifies who produced a conversation message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry of a conversation. The same struct covers all four
// roles; role-specific fields are zero for the others.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// AI messages only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// InvalidToolCalls holds tool invocations whose arguments could not be
	// parsed. A non-empty list marks the message malformed; such messages
	// are never persisted and exist only inside the gateway's retry loop.
	InvalidToolCalls []ToolCall `json:"invalid_tool_calls,omitempty"`

	// Tool result messages only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// Raw provider payload and other diagnostics.
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

func NewAIMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAI, Content: content, ToolCalls: toolCalls}
}

func NewToolMessage(content, toolName, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: toolName, ToolCallID: toolCallID}
}

// HasToolCalls reports whether this is an AI message with at least one
// pending tool invocation.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAI && len(m.ToolCalls) > 0
}

// SetMetadata attaches a diagnostic key/value, allocating the map lazily.
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Encode serializes the message for list-backed stores.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeMessage parses a message previously produced by Encode.
func DecodeMessage(data string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
