package llm

import (
	"context"
	"fmt"
	"strings"

	"fable/internal/types"
)

const titleSystemPrompt = "You are a professional conversation title generation assistant."

// NewTitleFunc builds a title generator over a client, typically one bound
// to a fast model. The returned function fits session.TitleFunc.
func NewTitleFunc(client Client) func(ctx context.Context, userInput, agentResponse string) (string, error) {
	return func(ctx context.Context, userInput, agentResponse string) (string, error) {
		prompt := fmt.Sprintf(`Please generate a concise conversation title (no more than 20 characters) based on the following conversation content:

Conversation content:
User: %s
Assistant: %s

Requirements:
1. Title should be concise and clear, able to summarize the conversation topic
2. No more than 20 characters
3. Only return the title text, no other content`, userInput, agentResponse)

		msg, err := client.Complete(ctx, Request{Messages: []types.Message{
			types.NewSystemMessage(titleSystemPrompt),
			types.NewHumanMessage(prompt),
		}})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(msg.Content), nil
	}
}
