package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunedesk/tunedesk/internal/tracing"
	"github.com/tunedesk/tunedesk/pkg/agent"
)

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Message    string `json:"message"`
	ThreadID   string `json:"thread_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// ChatResponse is the POST /api/chat reply.
type ChatResponse struct {
	Message    string `json:"message"`
	ThreadID   string `json:"thread_id"`
	CustomerID string `json:"customer_id,omitempty"`
	AgentName  string `json:"agent_name"`
}

// ConversationMessage is one visible history entry.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationResponse is the GET /api/conversations/{thread_id} reply.
type ConversationResponse struct {
	ThreadID   string                `json:"thread_id"`
	CustomerID string                `json:"customer_id,omitempty"`
	AgentName  string                `json:"agent_name,omitempty"`
	Messages   []ConversationMessage `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	release, ok := s.trackRequest(w)
	if !ok {
		return
	}
	defer release()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	ctx := tracing.NewRequestContext(r.Context())
	result, err := s.engine.Turn(ctx, threadID, req.Message, req.CustomerID)
	if err != nil {
		s.logger.Error().Err(err).Str("thread_id", threadID).Msg("Chat turn failed")
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Message:    result.Message,
		ThreadID:   result.ThreadID,
		CustomerID: result.CustomerID,
		AgentName:  result.AgentName,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	release, ok := s.trackRequest(w)
	if !ok {
		return
	}
	defer release()

	threadID := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if threadID == "" || strings.Contains(threadID, "/") {
		writeError(w, http.StatusBadRequest, "thread id is required")
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.engine.DeleteConversation(r.Context(), threadID); err != nil {
			s.logger.Error().Err(err).Str("thread_id", threadID).Msg("Conversation delete failed")
			writeError(w, http.StatusInternalServerError, "failed to delete conversation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "deleted",
			"thread_id": threadID,
		})
		return
	}

	state, err := s.engine.History(r.Context(), threadID)
	if err != nil {
		s.logger.Error().Err(err).Str("thread_id", threadID).Msg("History load failed")
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	// Tool plumbing stays internal; clients only see the dialogue.
	messages := make([]ConversationMessage, 0, len(state.Messages))
	for _, msg := range state.Messages {
		if msg.Role != agent.RoleUser && msg.Role != agent.RoleAssistant {
			continue
		}
		if msg.Content == "" {
			continue
		}
		messages = append(messages, ConversationMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		ThreadID:   state.ThreadID,
		CustomerID: state.CustomerID,
		AgentName:  state.NextAgent,
		Messages:   messages,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
