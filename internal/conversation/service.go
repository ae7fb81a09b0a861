package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus tracks the lifecycle of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusEscalated ConversationStatus = "escalated"
	StatusClosed    ConversationStatus = "closed"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderBot   SenderType = "bot"
	SenderAdmin SenderType = "admin"
)

// Conversation is the durable per-user conversation record. Status escalated
// always means the bot is locked out (HumanHandling=true, RAGEnabled=false),
// and only admin actions move it there; the pipeline's escalate verdicts set
// Priority and EscalationReason while Status stays active.
type Conversation struct {
	ID                  uuid.UUID
	UserID              string
	Platform            string
	Status              ConversationStatus
	RAGEnabled          bool
	HumanHandling       bool
	AssignedAdminID     *string
	Priority            int
	EscalationReason    *string
	EscalationTimestamp *time.Time
	LastMessageAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Message is one persisted conversation message. Messages are append-only.
// RequiresHuman is monotonic: once set it is never cleared automatically.
type Message struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	SenderType      SenderType
	Content         string
	Timestamp       time.Time
	ConfidenceScore *float64
	RequiresHuman   bool
	HumanReplied    bool
	Metadata        map[string]string
}

// InboundMessage is a platform webhook event normalized by the transport layer.
type InboundMessage struct {
	UserID   string            `json:"user_id"`
	Platform string            `json:"platform"`
	Text     string            `json:"text"`
	ImageURL string            `json:"image_url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Reply is the pipeline's outbound answer for one inbound message.
type Reply struct {
	ConversationID uuid.UUID
	RecipientID    string
	Text           string
	ImageURL       string
	Language       string
	Action         Action
	RequiresHuman  bool
	Timestamp      time.Time
}

// TurnState carries the ephemeral per-turn pipeline results. It is never
// persisted as a whole; individual fields end up in message metadata.
type TurnState struct {
	Language  string
	Patterns  Patterns
	Intent    IntentResult
	Decision  RoutingDecision
	Documents []Document
	Relevance float64
	Response  string
}

// Processor handles one normalized inbound message end to end.
type Processor interface {
	Process(ctx context.Context, in InboundMessage) (*Reply, error)
}
