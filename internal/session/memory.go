package session

import (
	"context"
	"sync"

	"fable/internal/logging"
	"fable/internal/types"
)

// MemoryStore is the process-local Store used by tests and single-node
// deployments without Redis.
type MemoryStore struct {
	id       string
	humanCap int
	logger   logging.Logger

	mu       sync.RWMutex
	messages []types.Message
	sideCtx  map[string]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session.
func NewMemoryStore(sessionID string, humanCap int) *MemoryStore {
	if humanCap <= 0 {
		humanCap = DefaultHumanCap
	}
	return &MemoryStore{
		id:       sessionID,
		humanCap: humanCap,
		logger:   logging.NewSessionLogger("memory-store", sessionID),
		sideCtx:  make(map[string]any),
	}
}

func (s *MemoryStore) ID() string { return s.id }

func (s *MemoryStore) Append(_ context.Context, msg types.Message) {
	if msg.Role == types.RoleAI && len(msg.InvalidToolCalls) > 0 {
		s.logger.Error("dropping AI message with invalid tool calls")
		return
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *MemoryStore) Messages(_ context.Context, n int) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]types.Message, n)
	copy(out, s.messages[:n])
	return out
}

func (s *MemoryStore) RecentMessages(_ context.Context, n int) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]types.Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

func (s *MemoryStore) AllMessages(_ context.Context) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *MemoryStore) LastMessage(_ context.Context) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return types.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *MemoryStore) Len(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MemoryStore) UpdateAt(_ context.Context, index int, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return
	}
	s.messages[index] = msg
}

func (s *MemoryStore) UpdateFromEnd(_ context.Context, k int, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 || k > len(s.messages) {
		return
	}
	s.messages[len(s.messages)-k] = msg
}

func (s *MemoryStore) DeleteFromEnd(_ context.Context, k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 || k > len(s.messages) {
		return
	}
	pos := len(s.messages) - k
	s.messages = append(s.messages[:pos], s.messages[pos+1:]...)
}

func (s *MemoryStore) TruncateLastK(_ context.Context, k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 {
		return
	}
	if k >= len(s.messages) {
		s.messages = nil
		return
	}
	s.messages = s.messages[:len(s.messages)-k]
}

func (s *MemoryStore) WindowedHistory(_ context.Context) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return windowMessages(s.messages, s.humanCap)
}

func (s *MemoryStore) PurgeToLastToolCalls(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := lastToolCallIndex(s.messages); i >= 0 {
		s.messages = s.messages[:i]
	}
}

func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

func (s *MemoryStore) SetContext(_ context.Context, key string, value any) {
	s.mu.Lock()
	s.sideCtx[key] = value
	s.mu.Unlock()
}

func (s *MemoryStore) Context(_ context.Context, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.sideCtx[key]
	return value, ok
}
