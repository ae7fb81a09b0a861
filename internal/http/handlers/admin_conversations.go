package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/internal/http/middleware"
	"github.com/cafepentagon/concierge/internal/observability/metrics"
	"github.com/cafepentagon/concierge/pkg/logging"
)

// conversationAdmin is the store surface the admin endpoints read from.
type conversationAdmin interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
	ListEscalated(ctx context.Context) ([]conversation.Conversation, error)
	MarkHumanReplied(ctx context.Context, messageID uuid.UUID) error
}

// actionApplier executes admin control actions.
type actionApplier interface {
	Apply(ctx context.Context, cmd conversation.AdminCommand) (*conversation.Conversation, error)
}

// AdminConversationsHandler exposes the operator control surface:
// escalation queue, conversation state, and the admin action endpoint.
type AdminConversationsHandler struct {
	store      conversationAdmin
	escalation actionApplier
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

// NewAdminConversationsHandler creates the handler. metrics may be nil.
func NewAdminConversationsHandler(store conversationAdmin, escalation actionApplier, m *metrics.PipelineMetrics, logger *logging.Logger) *AdminConversationsHandler {
	if store == nil {
		panic("handlers: admin conversations handler requires a store")
	}
	if escalation == nil {
		panic("handlers: admin conversations handler requires an escalation manager")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{store: store, escalation: escalation, metrics: m, logger: logger}
}

// ControlRequest is the body of POST /admin/conversation/control.
// Reason and Priority are optional and only meaningful for lock actions.
type ControlRequest struct {
	ConversationID string `json:"conversation_id"`
	Action         string `json:"action"`
	Reason         string `json:"reason,omitempty"`
	Priority       int    `json:"priority,omitempty"`
}

// ConversationStatusResponse is the admin view of one conversation.
type ConversationStatusResponse struct {
	ID                  string  `json:"id"`
	UserID              string  `json:"user_id"`
	Platform            string  `json:"platform"`
	Status              string  `json:"status"`
	RAGEnabled          bool    `json:"rag_enabled"`
	HumanHandling       bool    `json:"human_handling"`
	AssignedAdminID     *string `json:"assigned_admin_id,omitempty"`
	Priority            int     `json:"priority"`
	EscalationReason    *string `json:"escalation_reason,omitempty"`
	EscalationTimestamp *string `json:"escalation_timestamp,omitempty"`
	LastMessageAt       *string `json:"last_message_at,omitempty"`
}

// MessageResponse is the admin view of one message.
type MessageResponse struct {
	ID              string            `json:"id"`
	SenderType      string            `json:"sender_type"`
	Content         string            `json:"content"`
	Timestamp       string            `json:"timestamp"`
	ConfidenceScore *float64          `json:"confidence_score,omitempty"`
	RequiresHuman   bool              `json:"requires_human"`
	HumanReplied    bool              `json:"human_replied"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// HandleControl applies one admin action to a conversation.
// POST /admin/conversation/control
func (h *AdminConversationsHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	conversationID, err := uuid.Parse(strings.TrimSpace(req.ConversationID))
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}

	action := conversation.AdminAction(req.Action)
	if !conversation.ValidAdminAction(action) {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if req.Priority < 0 || req.Priority > 5 {
		http.Error(w, "priority out of range", http.StatusBadRequest)
		return
	}

	conv, err := h.escalation.Apply(r.Context(), conversation.AdminCommand{
		ConversationID: conversationID,
		Action:         action,
		AdminID:        middleware.AdminID(r),
		Reason:         strings.TrimSpace(req.Reason),
		Priority:       req.Priority,
	})
	if err != nil {
		h.logger.Error("admin action failed",
			"conversation_id", conversationID.String(),
			"action", req.Action,
			"error", err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(conv))
}

// HandleStatus returns one conversation's state.
// GET /admin/conversation/{id}/status
func (h *AdminConversationsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(conv))
}

// HandleMessages returns the recent messages of one conversation.
// GET /admin/conversation/{id}/messages
func (h *AdminConversationsHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	messages, err := h.store.GetMessages(r.Context(), conversationID, 100)
	if err != nil {
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, MessageResponse{
			ID:              msg.ID.String(),
			SenderType:      string(msg.SenderType),
			Content:         msg.Content,
			Timestamp:       msg.Timestamp.Format(time.RFC3339),
			ConfidenceScore: msg.ConfidenceScore,
			RequiresHuman:   msg.RequiresHuman,
			HumanReplied:    msg.HumanReplied,
			Metadata:        msg.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// HandleEscalated returns the escalation queue, oldest first.
// GET /admin/conversations/escalated
func (h *AdminConversationsHandler) HandleEscalated(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListEscalated(r.Context())
	if err != nil {
		http.Error(w, "failed to list escalated conversations", http.StatusInternalServerError)
		return
	}
	h.metrics.SetEscalationsOpen(len(conversations))

	out := make([]ConversationStatusResponse, 0, len(conversations))
	for i := range conversations {
		out = append(out, statusResponse(&conversations[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": out,
		"total":         len(out),
	})
}

// HandleMarkHumanReplied flags one message as answered by staff.
// POST /admin/message/{id}/mark-human-replied
func (h *AdminConversationsHandler) HandleMarkHumanReplied(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.store.MarkHumanReplied(r.Context(), messageID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to mark message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func statusResponse(conv *conversation.Conversation) ConversationStatusResponse {
	resp := ConversationStatusResponse{
		ID:               conv.ID.String(),
		UserID:           conv.UserID,
		Platform:         conv.Platform,
		Status:           string(conv.Status),
		RAGEnabled:       conv.RAGEnabled,
		HumanHandling:    conv.HumanHandling,
		AssignedAdminID:  conv.AssignedAdminID,
		Priority:         conv.Priority,
		EscalationReason: conv.EscalationReason,
	}
	if conv.EscalationTimestamp != nil {
		ts := conv.EscalationTimestamp.Format(time.RFC3339)
		resp.EscalationTimestamp = &ts
	}
	if conv.LastMessageAt != nil {
		ts := conv.LastMessageAt.Format(time.RFC3339)
		resp.LastMessageAt = &ts
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
