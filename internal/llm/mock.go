package llm

import (
	"context"
	"fmt"

	"fable/internal/types"
)

// MockClient replays a scripted sequence of responses. Used by tests and by
// the offline smoke-check mode of the CLI.
type MockClient struct {
	Responses []types.Message
	// StreamText, when set for an index, is emitted fragment by fragment
	// before the corresponding response is returned.
	StreamText map[int][]string
	// Err aborts every call when set.
	Err error

	Calls []Request
	next  int
}

func (m *MockClient) Complete(_ context.Context, req Request) (types.Message, error) {
	return m.take(req)
}

func (m *MockClient) StreamComplete(_ context.Context, req Request, onText func(string)) (types.Message, error) {
	if m.Err == nil {
		for _, fragment := range m.StreamText[m.next] {
			onText(fragment)
		}
	}
	return m.take(req)
}

func (m *MockClient) take(req Request) (types.Message, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return types.Message{}, m.Err
	}
	if m.next >= len(m.Responses) {
		return types.Message{}, fmt.Errorf("mock exhausted after %d responses", len(m.Responses))
	}
	msg := m.Responses[m.next]
	m.next++
	return msg, nil
}
