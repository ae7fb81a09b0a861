package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cafepentagon/concierge/internal/conversation"
)

type stubEmailSender struct {
	messages []EmailMessage
	err      error
}

func (s *stubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.messages = append(s.messages, msg)
	return s.err
}

func TestNotifyEscalation(t *testing.T) {
	sender := &stubEmailSender{}
	n := NewEscalationEmailNotifier(sender, "staff@cafepentagon.com", nil)

	conv := &conversation.Conversation{
		ID:       uuid.New(),
		UserID:   "psid-1",
		Platform: "facebook",
		Priority: 2,
	}
	if err := n.NotifyEscalation(context.Background(), conv, "low confidence in intent classification"); err != nil {
		t.Fatalf("NotifyEscalation error: %v", err)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.To != "staff@cafepentagon.com" {
		t.Errorf("to = %s", msg.To)
	}
	if !strings.Contains(msg.Body, "psid-1") || !strings.Contains(msg.Body, "low confidence") {
		t.Errorf("body missing details: %q", msg.Body)
	}
}

func TestNotifyEscalationSenderFailure(t *testing.T) {
	sender := &stubEmailSender{err: errors.New("quota exceeded")}
	n := NewEscalationEmailNotifier(sender, "staff@cafepentagon.com", nil)

	conv := &conversation.Conversation{ID: uuid.New()}
	if err := n.NotifyEscalation(context.Background(), conv, "reason"); err == nil {
		t.Fatal("expected error from failing sender")
	}
}

func TestNewEscalationEmailNotifierUnconfigured(t *testing.T) {
	if n := NewEscalationEmailNotifier(nil, "staff@cafepentagon.com", nil); n != nil {
		t.Fatal("expected nil notifier without a sender")
	}
	if n := NewEscalationEmailNotifier(&stubEmailSender{}, "", nil); n != nil {
		t.Fatal("expected nil notifier without a recipient")
	}

	// A nil notifier is safe to call.
	var n *EscalationEmailNotifier
	if err := n.NotifyEscalation(context.Background(), &conversation.Conversation{}, "r"); err != nil {
		t.Fatalf("nil notifier returned error: %v", err)
	}
}
