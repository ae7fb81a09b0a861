package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// AdminAction is one of the control verbs operators can apply to a
// conversation.
type AdminAction string

const (
	ActionDisableRAG        AdminAction = "disable_rag"
	ActionEnableRAG         AdminAction = "enable_rag"
	ActionAssignHuman       AdminAction = "assign_human"
	ActionReleaseHuman      AdminAction = "release_human"
	ActionCloseConversation AdminAction = "close_conversation"
)

// ValidAdminAction reports whether action is a known control verb.
func ValidAdminAction(action AdminAction) bool {
	switch action {
	case ActionDisableRAG, ActionEnableRAG, ActionAssignHuman, ActionReleaseHuman, ActionCloseConversation:
		return true
	}
	return false
}

// AdminCommand is one operator instruction. Reason and Priority are optional:
// an empty Reason keeps whatever is recorded, Priority <= 0 means the default
// for the action.
type AdminCommand struct {
	ConversationID uuid.UUID
	Action         AdminAction
	AdminID        string
	Reason         string
	Priority       int
}

// conversationStateStore is the persistence surface the escalation manager
// drives.
type conversationStateStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	UpdateConversationState(ctx context.Context, conv *Conversation) error
}

// cacheInvalidator drops cached history after state rewrites.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, conversationID uuid.UUID)
}

// EscalationNotifier is told when a conversation enters the human queue.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, conv *Conversation, reason string) error
}

// EscalationManager owns the conversation lock state machine. Only admin
// actions move the hard lock and the escalated status; the pipeline's
// escalate verdicts merely flag the conversation for attention via
// priority/reason. Status escalated always implies human_handling=true and
// rag_enabled=false.
//
// Transitions: active <-> escalated via assign/release; close_conversation is
// allowed from any state and is terminal.
type EscalationManager struct {
	store    conversationStateStore
	cache    cacheInvalidator
	notifier EscalationNotifier
	logger   *logging.Logger
}

func NewEscalationManager(store conversationStateStore, cache cacheInvalidator, notifier EscalationNotifier, logger *logging.Logger) *EscalationManager {
	if store == nil {
		panic("conversation: escalation manager requires a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationManager{store: store, cache: cache, notifier: notifier, logger: logger}
}

// Apply executes one admin command against a conversation. Re-applying the
// state a conversation is already in is a no-op, not an error. Any action
// other than close on a closed conversation fails.
func (m *EscalationManager) Apply(ctx context.Context, cmd AdminCommand) (*Conversation, error) {
	if !ValidAdminAction(cmd.Action) {
		return nil, fmt.Errorf("conversation: unknown admin action %q", cmd.Action)
	}

	conv, err := m.store.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation: conversation %s not found", cmd.ConversationID)
	}

	if conv.Status == StatusClosed {
		if cmd.Action == ActionCloseConversation {
			return conv, nil
		}
		return nil, fmt.Errorf("conversation: conversation %s is closed", cmd.ConversationID)
	}

	changed := applyAction(conv, cmd)
	if !changed {
		return conv, nil
	}

	if err := m.store.UpdateConversationState(ctx, conv); err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Invalidate(ctx, cmd.ConversationID)
	}

	m.logger.Info("admin action applied",
		slog.String("conversation_id", cmd.ConversationID.String()),
		slog.String("action", string(cmd.Action)),
		slog.String("admin_id", cmd.AdminID),
		slog.String("status", string(conv.Status)))
	return conv, nil
}

// applyAction mutates conv for cmd and reports whether anything changed.
// disable_rag and assign_human both take the lock; enable_rag and
// release_human both release it. assign_human additionally records which
// admin owns the conversation.
func applyAction(conv *Conversation, cmd AdminCommand) bool {
	switch cmd.Action {
	case ActionDisableRAG, ActionAssignHuman:
		changed := !conv.HumanHandling || conv.RAGEnabled || conv.Status != StatusEscalated
		conv.Status = StatusEscalated
		conv.HumanHandling = true
		conv.RAGEnabled = false
		if cmd.Action == ActionAssignHuman && cmd.AdminID != "" &&
			(conv.AssignedAdminID == nil || *conv.AssignedAdminID != cmd.AdminID) {
			assigned := cmd.AdminID
			conv.AssignedAdminID = &assigned
			changed = true
		}
		if cmd.Reason != "" && (conv.EscalationReason == nil || *conv.EscalationReason != cmd.Reason) {
			reason := cmd.Reason
			conv.EscalationReason = &reason
			changed = true
		}
		if conv.EscalationTimestamp == nil {
			now := time.Now().UTC()
			conv.EscalationTimestamp = &now
			changed = true
		}
		if cmd.Priority > 0 {
			if conv.Priority != cmd.Priority {
				conv.Priority = cmd.Priority
				changed = true
			}
		} else if conv.Priority < 2 {
			conv.Priority = 2
			changed = true
		}
		return changed

	case ActionEnableRAG, ActionReleaseHuman:
		if conv.Status == StatusActive && !conv.HumanHandling && conv.RAGEnabled &&
			conv.AssignedAdminID == nil && conv.EscalationReason == nil {
			return false
		}
		conv.Status = StatusActive
		conv.HumanHandling = false
		conv.RAGEnabled = true
		conv.AssignedAdminID = nil
		conv.EscalationReason = nil
		conv.EscalationTimestamp = nil
		conv.Priority = 1
		return true

	case ActionCloseConversation:
		conv.Status = StatusClosed
		conv.HumanHandling = false
		return true
	}
	return false
}

// FlagAdvisory records the pipeline's escalate verdict on a conversation
// without locking it: priority and reason are set so the conversation
// surfaces in the admin queue, and the notifier is told once. Status, the
// hard lock, and RAG stay untouched; only admin actions move those.
// Subsequent escalate verdicts on an already-flagged conversation are no-ops.
func (m *EscalationManager) FlagAdvisory(ctx context.Context, conv *Conversation, reason string) error {
	if conv.Status == StatusEscalated || conv.EscalationReason != nil {
		return nil
	}

	now := time.Now().UTC()
	conv.Priority = 2
	conv.EscalationReason = &reason
	conv.EscalationTimestamp = &now

	if err := m.store.UpdateConversationState(ctx, conv); err != nil {
		return err
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyEscalation(ctx, conv, reason); err != nil {
			m.logger.Warn("escalation notification failed",
				slog.String("conversation_id", conv.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
