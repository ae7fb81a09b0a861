package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations and their append-only message log in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("conversation: database handle cannot be nil")
	}
	return &Store{db: db}
}

var _ messageReader = (*Store)(nil)

const conversationColumns = `id, user_id, platform, status, rag_enabled, human_handling,
	       assigned_admin_id, priority, escalation_reason, escalation_timestamp,
	       last_message_at, created_at, updated_at`

// EnsureConversation returns the latest non-closed conversation for a user on
// a platform, creating one when none exists. Closed conversations are never
// reused; a new message after close starts a fresh conversation.
func (s *Store) EnsureConversation(ctx context.Context, userID, platform string) (*Conversation, error) {
	conv, err := s.findOpen(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now().UTC()
	conv = &Conversation{
		ID:         uuid.New(),
		UserID:     userID,
		Platform:   platform,
		Status:     StatusActive,
		RAGEnabled: true,
		Priority:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, platform, status, rag_enabled, human_handling,
		    priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		conv.ID, conv.UserID, conv.Platform, conv.Status, conv.RAGEnabled, conv.HumanHandling,
		conv.Priority, now)
	if err != nil {
		return nil, fmt.Errorf("conversation: create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) findOpen(ctx context.Context, userID, platform string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND platform = $2 AND status != $3
		ORDER BY created_at DESC
		LIMIT 1`, userID, platform, StatusClosed)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: find open conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads one conversation by id. Returns nil when unknown.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get conversation: %w", err)
	}
	return conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.Status, &c.RAGEnabled, &c.HumanHandling,
		&c.AssignedAdminID, &c.Priority, &c.EscalationReason, &c.EscalationTimestamp,
		&c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConversationState writes the fields the escalation manager controls.
// It also bumps updated_at.
func (s *Store) UpdateConversationState(ctx context.Context, conv *Conversation) error {
	now := time.Now().UTC()
	conv.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $2, rag_enabled = $3, human_handling = $4, assigned_admin_id = $5,
		    priority = $6, escalation_reason = $7, escalation_timestamp = $8, updated_at = $9
		WHERE id = $1`,
		conv.ID, conv.Status, conv.RAGEnabled, conv.HumanHandling, conv.AssignedAdminID,
		conv.Priority, conv.EscalationReason, conv.EscalationTimestamp, now)
	if err != nil {
		return fmt.Errorf("conversation: update conversation state: %w", err)
	}
	return nil
}

// AppendMessage persists one message and bumps the conversation's
// last_message_at.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("conversation: marshal message metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_type, content, timestamp,
		    confidence_score, requires_human, human_replied, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.ConversationID, msg.SenderType, msg.Content, msg.Timestamp,
		msg.ConfidenceScore, msg.RequiresHuman, msg.HumanReplied, metadata)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $2, updated_at = $2 WHERE id = $1`,
		msg.ConversationID, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("conversation: touch conversation: %w", err)
	}
	return nil
}

// GetMessages returns the most recent messages of a conversation in
// chronological order. limit <= 0 returns everything.
func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, sender_type, content, timestamp,
		       confidence_score, requires_human, human_replied, metadata
		FROM (
		    SELECT * FROM messages WHERE conversation_id = $1 ORDER BY timestamp DESC LIMIT $2
		) recent
		ORDER BY timestamp ASC`

	effectiveLimit := limit
	if effectiveLimit <= 0 {
		effectiveLimit = 1000
	}

	rows, err := s.db.QueryContext(ctx, query, conversationID, effectiveLimit)
	if err != nil {
		return nil, fmt.Errorf("conversation: get messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderType, &m.Content, &m.Timestamp,
			&m.ConfidenceScore, &m.RequiresHuman, &m.HumanReplied, &metadata); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if out == nil {
		out = []Message{}
	}
	return out, rows.Err()
}

// ListEscalated returns the admin attention queue, oldest escalation first:
// conversations an admin has locked plus open conversations the pipeline has
// flagged with an escalation reason.
func (s *Store) ListEscalated(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE (status = $1 OR escalation_reason IS NOT NULL) AND status != $2
		ORDER BY escalation_timestamp ASC NULLS LAST`, StatusEscalated, StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("conversation: list escalated: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan escalated conversation: %w", err)
		}
		out = append(out, *conv)
	}
	if out == nil {
		out = []Conversation{}
	}
	return out, rows.Err()
}

// MarkHumanReplied flags a message as answered by staff.
func (s *Store) MarkHumanReplied(ctx context.Context, messageID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET human_replied = TRUE WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("conversation: mark human replied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: mark human replied: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation: message %s not found", messageID)
	}
	return nil
}
