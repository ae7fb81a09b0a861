package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cafepentagon/concierge/internal/observability/metrics"
	"github.com/cafepentagon/concierge/pkg/logging"
)

// conversationRepository is the persistence surface the pipeline needs per
// turn.
type conversationRepository interface {
	EnsureConversation(ctx context.Context, userID, platform string) (*Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
}

// historyCache is the bounded recent-turn window.
type historyCache interface {
	Load(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	Append(ctx context.Context, conversationID uuid.UUID, history []Message, msg Message) []Message
}

// escalator records advisory escalation verdicts.
type escalator interface {
	FlagAdvisory(ctx context.Context, conv *Conversation, reason string) error
}

// Pipeline runs one inbound message through detection, classification,
// routing, retrieval, and synthesis, and persists both sides of the turn.
type Pipeline struct {
	repo       conversationRepository
	memory     historyCache
	detector   *PatternDetector
	classifier *IntentClassifier
	gate       *RetrievalGate
	synth      *Synthesizer
	escalation escalator
	metrics    *metrics.PipelineMetrics
	tracer     trace.Tracer
	logger     *logging.Logger
}

type PipelineParams struct {
	Repo        conversationRepository
	Memory      historyCache
	Detector    *PatternDetector
	Classifier  *IntentClassifier
	Gate        *RetrievalGate
	Synthesizer *Synthesizer
	Escalation  escalator
	Metrics     *metrics.PipelineMetrics
	Logger      *logging.Logger
}

func NewPipeline(p PipelineParams) *Pipeline {
	if p.Repo == nil {
		panic("conversation: pipeline requires a repository")
	}
	if p.Memory == nil {
		panic("conversation: pipeline requires a history cache")
	}
	if p.Detector == nil || p.Classifier == nil || p.Gate == nil || p.Synthesizer == nil {
		panic("conversation: pipeline requires detector, classifier, gate, and synthesizer")
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	return &Pipeline{
		repo:       p.Repo,
		memory:     p.Memory,
		detector:   p.Detector,
		classifier: p.Classifier,
		gate:       p.Gate,
		synth:      p.Synthesizer,
		escalation: p.Escalation,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("concierge.internal.conversation.pipeline"),
		logger:     p.Logger,
	}
}

var _ Processor = (*Pipeline)(nil)

// Process handles one inbound message end to end and returns the reply to
// deliver. A nil reply with nil error means the bot stays silent (never the
// case today: locked conversations still get the canned notice).
func (p *Pipeline) Process(ctx context.Context, in InboundMessage) (*Reply, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "conversation.pipeline.process")
	defer span.End()

	conv, err := p.repo.EnsureConversation(ctx, in.UserID, in.Platform)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: ensure conversation: %w", err)
	}

	// Persist the user side before anything can fail downstream.
	userMsg := Message{
		ConversationID: conv.ID,
		SenderType:     SenderUser,
		Content:        in.Text,
		Metadata:       in.Metadata,
	}

	// A human operator holds the conversation: short-circuit before pattern
	// detection with the canned notice and do not spend any model or
	// retrieval calls. Only the language lookup runs, to localize the notice.
	if conv.HumanHandling {
		language := p.detector.DetectLanguage(in.Text)
		userMsg.RequiresHuman = true
		p.appendDurable(ctx, span, &userMsg)
		p.metrics.ObserveLockedTurn()
		return &Reply{
			ConversationID: conv.ID,
			RecipientID:    in.UserID,
			Text:           LockedNotice(language),
			Language:       language,
			RequiresHuman:  true,
			Timestamp:      time.Now().UTC(),
		}, nil
	}

	patterns := p.detector.Detect(in.Text)

	history, err := p.memory.Load(ctx, conv.ID)
	if err != nil {
		// History is an enrichment; a dead cache and store must not block
		// the reply.
		span.RecordError(err)
		p.logger.Warn("history load failed, continuing without history",
			slog.String("conversation_id", conv.ID.String()),
			slog.String("error", err.Error()))
		history = nil
	}

	intent := p.classifier.Classify(ctx, in.Text, history)
	decision := Route(RouteInput{Message: in.Text, Patterns: patterns, Intent: intent})

	state := TurnState{
		Language: patterns.Language,
		Patterns: patterns,
		Intent:   intent,
		Decision: decision,
	}

	if decision.Action == ActionPerformSearch && conv.RAGEnabled {
		retrieval, err := p.gate.Retrieve(ctx, in.Text, intent)
		if err != nil {
			// A broken knowledge base degrades to the no-data answer rather
			// than failing the turn.
			span.RecordError(err)
			p.logger.Warn("retrieval failed, continuing without context",
				slog.String("conversation_id", conv.ID.String()),
				slog.String("error", err.Error()))
		} else {
			state.Documents = retrieval.Documents
			state.Relevance = retrieval.Relevance
		}
	}

	state.Response = p.synth.Synthesize(ctx, in.Text, state, history)

	confidence := intent.Confidence
	userMsg.ConfidenceScore = &confidence
	userMsg.RequiresHuman = decision.Action == ActionEscalateToHuman
	if userMsg.Metadata == nil {
		userMsg.Metadata = make(map[string]string)
	}
	userMsg.Metadata["intent"] = intent.Intent
	userMsg.Metadata["action"] = string(decision.Action)
	userMsg.Metadata["reason"] = decision.Reason

	p.appendDurable(ctx, span, &userMsg)
	history = p.memory.Append(ctx, conv.ID, history, userMsg)

	botMsg := Message{
		ConversationID: conv.ID,
		SenderType:     SenderBot,
		Content:        state.Response,
	}
	p.appendDurable(ctx, span, &botMsg)
	p.memory.Append(ctx, conv.ID, history, botMsg)

	if decision.Action == ActionEscalateToHuman && p.escalation != nil {
		if err := p.escalation.FlagAdvisory(ctx, conv, decision.Reason); err != nil {
			span.RecordError(err)
			p.logger.Warn("failed to flag escalation",
				slog.String("conversation_id", conv.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	p.metrics.ObserveTurn(string(decision.Action), patterns.Language, time.Since(started).Seconds())
	p.logger.Info("turn processed",
		slog.String("conversation_id", conv.ID.String()),
		slog.String("intent", intent.Intent),
		slog.String("action", string(decision.Action)),
		slog.String("language", patterns.Language))

	return &Reply{
		ConversationID: conv.ID,
		RecipientID:    in.UserID,
		Text:           state.Response,
		Language:       patterns.Language,
		Action:         decision.Action,
		RequiresHuman:  decision.Action == ActionEscalateToHuman,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// appendDurable writes a message to the durable store. An unavailable store
// is logged and the turn continues on the cache alone; the message is lost
// on restart.
func (p *Pipeline) appendDurable(ctx context.Context, span trace.Span, msg *Message) {
	if err := p.repo.AppendMessage(ctx, msg); err != nil {
		span.RecordError(err)
		p.logger.Warn("durable append failed, continuing cache-only",
			slog.String("conversation_id", msg.ConversationID.String()),
			slog.String("sender_type", string(msg.SenderType)),
			slog.String("error", err.Error()))
	}
}
