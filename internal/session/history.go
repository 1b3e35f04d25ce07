package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"fable/internal/logging"
)

const (
	historyPrefix      = "session_history:"
	userSessionsPrefix = "user_sessions:"
	sessionMetaPrefix  = "session_meta:"

	// DefaultMaxUserSessions caps the per-user session list.
	DefaultMaxUserSessions = 20

	titleMaxRunes = 20
)

// Interaction is one archived exchange: the user input and everything the
// agent streamed back.
type Interaction struct {
	UserInput      string    `json:"user_input"`
	AgentResponses []string  `json:"agent_responses"`
	Timestamp      time.Time `json:"timestamp"`
}

// SessionMeta is the browsing metadata attached to a session.
type SessionMeta struct {
	Title     string `json:"title,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// TitleFunc produces a short conversation title from the first exchange.
// Implementations typically call a fast model.
type TitleFunc func(ctx context.Context, userInput, agentResponse string) (string, error)

// HistoryManager archives interactions and session metadata for history
// browsing. The agent loop never reads any of this; it exists for the API
// surface only.
type HistoryManager struct {
	rdb             redis.UniversalClient
	titleFn         TitleFunc
	maxUserSessions int
	logger          logging.Logger
	now             func() time.Time
}

// NewHistoryManager creates a history manager. titleFn may be nil; a
// timestamp-based default title is used instead.
func NewHistoryManager(rdb redis.UniversalClient, titleFn TitleFunc, maxUserSessions int) *HistoryManager {
	if maxUserSessions <= 0 {
		maxUserSessions = DefaultMaxUserSessions
	}
	return &HistoryManager{
		rdb:             rdb,
		titleFn:         titleFn,
		maxUserSessions: maxUserSessions,
		logger:          logging.NewComponentLogger("history"),
		now:             time.Now,
	}
}

// SaveInteraction archives one complete exchange and refreshes the user's
// session list and metadata.
func (h *HistoryManager) SaveInteraction(ctx context.Context, sessionID, userInput string, agentResponses []string, userID string) {
	data, err := json.Marshal(Interaction{
		UserInput:      userInput,
		AgentResponses: agentResponses,
		Timestamp:      h.now(),
	})
	if err != nil {
		h.logger.Error("encode interaction: %v", err)
		return
	}
	if err := h.rdb.RPush(ctx, historyPrefix+sessionID, string(data)).Err(); err != nil {
		h.logger.Error("save interaction for %s: %v", sessionID, err)
		return
	}

	if userID == "" {
		return
	}
	h.AddUserSession(ctx, userID, sessionID)
	if h.SessionTitle(ctx, sessionID) == "" {
		h.generateTitle(ctx, sessionID, userInput, agentResponses, userID)
	}
}

// SessionHistory returns up to limit archived interactions, oldest first.
func (h *HistoryManager) SessionHistory(ctx context.Context, sessionID string, limit int) []Interaction {
	if limit <= 0 {
		limit = 50
	}
	raws, err := h.rdb.LRange(ctx, historyPrefix+sessionID, int64(-limit), -1).Result()
	if err != nil {
		h.logger.Error("read history for %s: %v", sessionID, err)
		return nil
	}
	out := make([]Interaction, 0, len(raws))
	for _, raw := range raws {
		var interaction Interaction
		if err := json.Unmarshal([]byte(raw), &interaction); err != nil {
			h.logger.Warn("skip undecodable history entry: %v", err)
			continue
		}
		out = append(out, interaction)
	}
	return out
}

// ClearSessionHistory removes a session's archive and metadata, reporting
// whether an archive existed.
func (h *HistoryManager) ClearSessionHistory(ctx context.Context, sessionID string) bool {
	deleted, err := h.rdb.Del(ctx, historyPrefix+sessionID).Result()
	if err != nil {
		h.logger.Error("clear history for %s: %v", sessionID, err)
		return false
	}
	h.DeleteSessionMeta(ctx, sessionID)
	return deleted > 0
}

// AddUserSession moves sessionID to the front of the user's session list,
// trimming the list to the configured cap.
func (h *HistoryManager) AddUserSession(ctx context.Context, userID, sessionID string) {
	if userID == "" || sessionID == "" {
		return
	}
	key := userSessionsPrefix + userID

	existing, err := h.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		h.logger.Error("read sessions for %s: %v", userID, err)
		return
	}
	if len(existing) > 0 && existing[0] == sessionID {
		return
	}

	pipe := h.rdb.TxPipeline()
	pipe.LRem(ctx, key, 0, sessionID)
	pipe.LPush(ctx, key, sessionID)
	pipe.LTrim(ctx, key, 0, int64(h.maxUserSessions)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Error("update sessions for %s: %v", userID, err)
	}
}

// UserSessions lists the user's session ids, newest first.
func (h *HistoryManager) UserSessions(ctx context.Context, userID string, limit int) []string {
	if userID == "" {
		return nil
	}
	if limit <= 0 {
		limit = 100
	}
	ids, err := h.rdb.LRange(ctx, userSessionsPrefix+userID, 0, int64(limit)-1).Result()
	if err != nil {
		h.logger.Error("list sessions for %s: %v", userID, err)
		return nil
	}
	return ids
}

// RemoveUserSession drops a session from the user's list and deletes its
// metadata.
func (h *HistoryManager) RemoveUserSession(ctx context.Context, userID, sessionID string) {
	if userID == "" || sessionID == "" {
		return
	}
	if err := h.rdb.LRem(ctx, userSessionsPrefix+userID, 0, sessionID).Err(); err != nil {
		h.logger.Error("remove session %s for %s: %v", sessionID, userID, err)
	}
	h.DeleteSessionMeta(ctx, sessionID)
}

// ClearUserSessions deletes the user's entire session list.
func (h *HistoryManager) ClearUserSessions(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	deleted, err := h.rdb.Del(ctx, userSessionsPrefix+userID).Result()
	if err != nil {
		h.logger.Error("clear sessions for %s: %v", userID, err)
		return false
	}
	return deleted > 0
}

// SessionMeta reads a session's metadata record.
func (h *HistoryManager) SessionMeta(ctx context.Context, sessionID string) SessionMeta {
	fields, err := h.rdb.HGetAll(ctx, sessionMetaPrefix+sessionID).Result()
	if err != nil {
		h.logger.Error("read meta for %s: %v", sessionID, err)
		return SessionMeta{}
	}
	return SessionMeta{
		Title:     fields["title"],
		UserID:    fields["user_id"],
		CreatedAt: fields["created_at"],
		UpdatedAt: fields["updated_at"],
	}
}

// SaveSessionMeta upserts title and owner, preserving created_at.
func (h *HistoryManager) SaveSessionMeta(ctx context.Context, sessionID, title, userID string) {
	existing := h.SessionMeta(ctx, sessionID)
	now := h.now().Format(time.RFC3339)

	fields := map[string]any{"updated_at": now}
	if title != "" {
		fields["title"] = title
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	if existing.CreatedAt == "" {
		fields["created_at"] = now
	}

	if err := h.rdb.HSet(ctx, sessionMetaPrefix+sessionID, fields).Err(); err != nil {
		h.logger.Error("save meta for %s: %v", sessionID, err)
	}
}

// SessionTitle returns the stored title, or "" when absent.
func (h *HistoryManager) SessionTitle(ctx context.Context, sessionID string) string {
	return h.SessionMeta(ctx, sessionID).Title
}

// UpdateSessionTitle overwrites the title.
func (h *HistoryManager) UpdateSessionTitle(ctx context.Context, sessionID, title string) {
	fields := map[string]any{
		"title":      title,
		"updated_at": h.now().Format(time.RFC3339),
	}
	if err := h.rdb.HSet(ctx, sessionMetaPrefix+sessionID, fields).Err(); err != nil {
		h.logger.Error("update title for %s: %v", sessionID, err)
	}
}

// SessionSummary pairs a session id with its metadata for listings.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	UserID    string `json:"user_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// UserSessionsWithMeta lists the user's sessions with their metadata,
// newest first.
func (h *HistoryManager) UserSessionsWithMeta(ctx context.Context, userID string, limit int) []SessionSummary {
	ids := h.UserSessions(ctx, userID, limit)
	out := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		meta := h.SessionMeta(ctx, id)
		title := meta.Title
		if title == "" {
			short := id
			if len(short) > 8 {
				short = short[:8] + "..."
			}
			title = "Session " + short
		}
		out = append(out, SessionSummary{
			SessionID: id,
			Title:     title,
			UserID:    meta.UserID,
			CreatedAt: meta.CreatedAt,
			UpdatedAt: meta.UpdatedAt,
		})
	}
	return out
}

// DeleteSessionMeta removes a session's metadata record.
func (h *HistoryManager) DeleteSessionMeta(ctx context.Context, sessionID string) {
	if err := h.rdb.Del(ctx, sessionMetaPrefix+sessionID).Err(); err != nil {
		h.logger.Error("delete meta for %s: %v", sessionID, err)
	}
}

func (h *HistoryManager) generateTitle(ctx context.Context, sessionID, userInput string, agentResponses []string, userID string) {
	title := ""
	if h.titleFn != nil {
		response := ""
		if len(agentResponses) > 0 {
			response = agentResponses[0]
		}
		generated, err := h.titleFn(ctx, userInput, response)
		if err != nil {
			h.logger.Warn("title generation for %s failed: %v", sessionID, err)
		} else {
			title = truncateTitle(generated)
		}
	}
	if title == "" {
		title = "Conversation " + h.now().Format("01-02 15:04")
	}
	h.SaveSessionMeta(ctx, sessionID, title, userID)
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes-3]) + "..."
}
