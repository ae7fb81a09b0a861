package notify

import (
	"context"
	"fmt"

	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/pkg/logging"
)

// EscalationEmailNotifier emails operators when a conversation enters the
// escalation queue.
type EscalationEmailNotifier struct {
	sender EmailSender
	to     string
	logger *logging.Logger
}

// NewEscalationEmailNotifier creates a notifier. Returns nil when either the
// sender or the recipient is missing, so callers can wire it optionally.
func NewEscalationEmailNotifier(sender EmailSender, to string, logger *logging.Logger) *EscalationEmailNotifier {
	if sender == nil || to == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationEmailNotifier{sender: sender, to: to, logger: logger}
}

var _ conversation.EscalationNotifier = (*EscalationEmailNotifier)(nil)

// NotifyEscalation sends the operator alert for one escalated conversation.
func (n *EscalationEmailNotifier) NotifyEscalation(ctx context.Context, conv *conversation.Conversation, reason string) error {
	if n == nil {
		return nil
	}

	subject := fmt.Sprintf("Conversation escalated: %s", conv.ID)
	body := fmt.Sprintf(
		"A conversation needs human attention.\n\nConversation: %s\nUser: %s\nPlatform: %s\nPriority: %d\nReason: %s\n",
		conv.ID, conv.UserID, conv.Platform, conv.Priority, reason)

	if err := n.sender.Send(ctx, EmailMessage{
		To:      n.to,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: escalation email: %w", err)
	}

	n.logger.Info("escalation alert sent", "conversation_id", conv.ID.String(), "reason", reason)
	return nil
}
