package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fable/internal/storage"
)

func (s *Server) handleGetSessionHistory(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	sessionID := c.Param("session_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history := s.deps.History.SessionHistory(c.Request.Context(), sessionID, limit)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"history":    history,
		"total":      len(history),
	})
}

func (s *Server) handleClearSessionHistory(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	sessionID := c.Param("session_id")

	cleared := s.deps.History.ClearSessionHistory(c.Request.Context(), sessionID)
	message := "No history found"
	if cleared {
		message = "History cleared"
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"success":    cleared,
		"message":    message,
	})
}

func (s *Server) handleGetUserSessions(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	sessions := s.deps.History.UserSessionsWithMeta(c.Request.Context(), user, limit)
	c.JSON(http.StatusOK, gin.H{
		"user_id":  user,
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleClearUserSessions(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	cleared := 0
	for _, sessionID := range s.deps.History.UserSessions(ctx, user, 0) {
		if s.deps.History.ClearSessionHistory(ctx, sessionID) {
			cleared++
		}
	}
	success := s.deps.History.ClearUserSessions(ctx, user)

	message := "Clear failed"
	if success {
		message = fmt.Sprintf("Cleared %d session records for user %s", cleared, user)
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":          user,
		"success":          success,
		"cleared_sessions": cleared,
		"message":          message,
	})
}

func (s *Server) handleRemoveUserSession(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	ctx := c.Request.Context()

	s.deps.History.RemoveUserSession(ctx, user, sessionID)
	sessionCleared := s.deps.History.ClearSessionHistory(ctx, sessionID)

	c.JSON(http.StatusOK, gin.H{
		"user_id":         user,
		"session_id":      sessionID,
		"success":         true,
		"session_cleared": sessionCleared,
		"message":         fmt.Sprintf("Removed session %s from user %s's session list", sessionID, user),
	})
}

func (s *Server) handleGetSessionMeta(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	meta := s.deps.History.SessionMeta(c.Request.Context(), sessionID)
	if meta.UserID != user {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Access denied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"meta":       meta,
	})
}

func (s *Server) handleUpdateSessionMeta(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Title is required"})
		return
	}

	ctx := c.Request.Context()
	meta := s.deps.History.SessionMeta(ctx, sessionID)
	if meta.UserID != user {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Access denied"})
		return
	}

	s.deps.History.UpdateSessionTitle(ctx, sessionID, body.Title)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"title":      body.Title,
		"success":    true,
		"message":    fmt.Sprintf("Session title updated to: %s", body.Title),
	})
}

// handleDownload streams the session's accumulated draft as a plain-text
// attachment, chunk by chunk.
func (s *Server) handleDownload(c *gin.Context) {
	sessionID := c.Param("session_id")
	chunks := storage.NewChunkStore(sessionID, s.deps.Redis)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.txt", sessionID))
	c.Status(http.StatusOK)

	for _, chunk := range chunks.GetAll(c.Request.Context()) {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return
		}
		c.Writer.Flush()
	}
}
