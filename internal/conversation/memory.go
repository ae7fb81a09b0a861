package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// messageReader is the durable-store capability MemoryManager needs to
// repopulate a cold cache.
type messageReader interface {
	GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
}

// MemoryManager keeps the bounded recent-turn window for each conversation in
// Redis, backed by the durable message store. The cache is an optimization:
// a Redis miss falls through to the store and repopulates the key.
type MemoryManager struct {
	redis  *redis.Client
	store  messageReader
	ttl    time.Duration
	limit  int
	tracer trace.Tracer
	logger *logging.Logger
}

// NewMemoryManager creates a manager. limit bounds the cached window; ttl is
// the idle expiry on each conversation key.
func NewMemoryManager(rdb *redis.Client, store messageReader, limit int, ttl time.Duration, logger *logging.Logger) *MemoryManager {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if store == nil {
		panic("conversation: message store cannot be nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryManager{
		redis:  rdb,
		store:  store,
		ttl:    ttl,
		limit:  limit,
		tracer: otel.Tracer("concierge.internal.conversation.memory"),
		logger: logger,
	}
}

func historyKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("history:%s", conversationID)
}

// Load returns the recent-turn window, oldest first. On a cache miss it reads
// the durable store and repopulates the key. A Redis outage degrades to a
// store read rather than failing the turn.
func (m *MemoryManager) Load(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	ctx, span := m.tracer.Start(ctx, "conversation.memory.load")
	defer span.End()

	data, err := m.redis.Get(ctx, historyKey(conversationID)).Bytes()
	if err == nil {
		var history []Message
		if err := json.Unmarshal(data, &history); err == nil {
			return history, nil
		}
		// Corrupt cache entry; fall through and rebuild it.
		m.logger.Warn("corrupt history cache entry, rebuilding",
			slog.String("conversation_id", conversationID.String()))
	} else if err != redis.Nil {
		span.RecordError(err)
		m.logger.Warn("history cache read failed, falling back to store",
			slog.String("error", err.Error()))
	}

	history, err := m.store.GetMessages(ctx, conversationID, m.limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load history from store: %w", err)
	}

	m.writeCache(ctx, conversationID, history)
	return history, nil
}

// Append adds a message to the cached window, trimming to the configured
// limit. Durable persistence happens separately; Append only maintains the
// cache and never fails the turn on a Redis error.
func (m *MemoryManager) Append(ctx context.Context, conversationID uuid.UUID, history []Message, msg Message) []Message {
	ctx, span := m.tracer.Start(ctx, "conversation.memory.append")
	defer span.End()

	history = append(history, msg)
	if len(history) > m.limit {
		history = history[len(history)-m.limit:]
	}

	m.writeCache(ctx, conversationID, history)
	return history
}

// Invalidate drops the cached window so the next Load rebuilds from the
// durable store. Used after admin actions that rewrite conversation state.
func (m *MemoryManager) Invalidate(ctx context.Context, conversationID uuid.UUID) {
	if err := m.redis.Del(ctx, historyKey(conversationID)).Err(); err != nil {
		m.logger.Warn("history cache invalidation failed",
			slog.String("conversation_id", conversationID.String()),
			slog.String("error", err.Error()))
	}
}

func (m *MemoryManager) writeCache(ctx context.Context, conversationID uuid.UUID, history []Message) {
	data, err := json.Marshal(history)
	if err != nil {
		m.logger.Warn("failed to marshal history for cache", slog.String("error", err.Error()))
		return
	}
	if err := m.redis.Set(ctx, historyKey(conversationID), data, m.ttl).Err(); err != nil {
		m.logger.Warn("history cache write failed",
			slog.String("conversation_id", conversationID.String()),
			slog.String("error", err.Error()))
	}
}
