package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fable/internal/llm"
	"fable/internal/logging"
	"fable/internal/observability"
	"fable/internal/types"
)

// StreamRequest is the body of the stream endpoint. Exactly one of Message
// and ToolCalls drives the turn: fresh input or confirmation feedback.
type StreamRequest struct {
	Message   string                    `json:"message"`
	SessionID string                    `json:"sessionId"`
	Env       map[string]any            `json:"env"`
	ToolCalls []types.ToolCallToConfirm `json:"tool_calls"`
}

// handleStream runs one agent turn and relays its output as server-sent
// events. Frame types mirror the output union: "data:" for text, a
// "tool_message:" frame per tool result, and "tool_call:" for pending
// confirmations.
func (s *Server) handleStream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := logging.NewSessionLogger("stream", sessionID)

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx := c.Request.Context()
	store := s.deps.Sessions.Get(sessionID)
	if auth := c.GetHeader("Authorization"); auth != "" {
		store.SetContext(ctx, "authorization_token", auth)
	}
	store.SetContext(ctx, "session_id", sessionID)
	if req.Env != nil {
		store.SetContext(ctx, "env", req.Env)
	}

	spanCtx, span := s.deps.Tracer.StartSpan(ctx, observability.SpanAgentStream,
		observability.SessionAttrs(sessionID, userID(c))...)
	defer span.End()

	s.deps.Metrics.ActiveStreams.Inc()
	started := time.Now()
	defer func() {
		s.deps.Metrics.ActiveStreams.Dec()
		s.deps.Metrics.StreamDuration.Observe(time.Since(started).Seconds())
	}()
	kind := "input"
	if len(req.ToolCalls) > 0 {
		kind = "feedback"
	}
	s.deps.Metrics.AgentTurns.WithLabelValues(kind).Inc()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var frames []string
	write := func(frame string) {
		frames = append(frames, frame)
		fmt.Fprint(c.Writer, frame)
		c.Writer.Flush()
	}

	err := s.deps.Agent.Call(spanCtx, store, req.Message, req.ToolCalls, func(item types.StreamItem) {
		switch item.Kind {
		case types.StreamText:
			write(dataFrame(gin.H{"content": item.Text}))
		case types.StreamToolMessage:
			s.deps.Metrics.ToolExecutions.WithLabelValues(item.Tool.ToolName).Inc()
			write(toolMessageFrame(item.Tool))
		case types.StreamConfirmRequest:
			write(toolCallFrame(item.Pending))
		case types.StreamFinalAnswer:
			if text, ok := item.Answer.(string); ok {
				if text != "" {
					write(dataFrame(gin.H{"content": text}))
				}
			} else {
				write(dataFrame(gin.H{"content": item.Answer}))
			}
		}
	})
	if err != nil {
		logger.Error("agent call failed: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var tcErr *llm.ToolCallError
		if errors.As(err, &tcErr) {
			s.deps.Metrics.ToolCallFailures.Inc()
			write(dataFrame(gin.H{"content": "Unable to answer, please ask again"}))
			// Repair the tail so the next turn starts from valid history.
			store.PurgeToLastToolCalls(ctx)
		} else {
			write(dataFrame(gin.H{
				"type":    "error",
				"content": fmt.Sprintf("Error occurred while processing request: %v", err),
			}))
		}
		s.deps.Metrics.StreamRequests.WithLabelValues("error").Inc()
	} else {
		span.SetAttributes(attribute.Int("fable.frames", len(frames)))
		s.deps.Metrics.StreamRequests.WithLabelValues("ok").Inc()
	}

	if len(frames) > 0 {
		s.deps.History.SaveInteraction(ctx, sessionID, req.Message, frames, userID(c))
	}
}

func dataFrame(payload any) string {
	return "data: " + mustJSON(payload) + "\n\n"
}

func toolMessageFrame(msg *types.Message) string {
	return "tool_message: " + mustJSON(gin.H{
		"content":      msg.Content,
		"name":         msg.ToolName,
		"tool_call_id": msg.ToolCallID,
	}) + "\n\n"
}

func toolCallFrame(pending []types.ToolCallToConfirm) string {
	return "tool_call: " + mustJSON(pending) + "\n\n"
}

func mustJSON(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"type":"error","content":"encoding failure"}`
	}
	return string(data)
}
