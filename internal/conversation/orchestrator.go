package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// Dispatcher is the queue-backed entrypoint used by the webhook handler.
// Enqueue is fire-and-forget: the webhook acknowledges the platform
// immediately and the reply is delivered out of band.
type Dispatcher interface {
	Enqueue(ctx context.Context, in InboundMessage) error
	Shutdown(ctx context.Context) error
}

// ReplySender delivers a processed reply back to the user's platform.
type ReplySender interface {
	SendReply(ctx context.Context, reply *Reply) error
}

// ErrOrchestratorClosed indicates the dispatcher is no longer accepting work.
var ErrOrchestratorClosed = errors.New("conversation: orchestrator closed")

// Queue is the inbound message transport the orchestrator polls.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Orchestrator routes inbound messages through a queue before invoking the
// pipeline, so webhook handlers can acknowledge within the platform's
// deadline regardless of model latency. The queue can point at LocalStack
// SQS during development and AWS SQS in production without touching the
// HTTP handlers.
type Orchestrator struct {
	processor Processor
	sender    ReplySender
	queue     Queue
	logger    *logging.Logger

	cfg orchestratorConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ Dispatcher = (*Orchestrator)(nil)

const (
	defaultWorkers          = 2
	defaultReceiveWait      = 2  // seconds
	defaultReceiveMax       = 5  // messages
	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
)

type orchestratorConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// OrchestratorOption configures the dispatcher.
type OrchestratorOption func(*orchestratorConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for ReceiveMessage calls.
func WithReceiveWaitSeconds(seconds int) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll should return.
func WithReceiveBatchSize(size int) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// NewOrchestrator wires a queue-backed dispatcher around the pipeline and the
// outbound sender.
func NewOrchestrator(processor Processor, sender ReplySender, queue Queue, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if sender == nil {
		panic("conversation: reply sender cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := orchestratorConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		processor: processor,
		sender:    sender,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		o.wg.Add(1)
		go o.runWorker(i + 1)
	}

	return o
}

// Enqueue submits one inbound message for asynchronous processing.
func (o *Orchestrator) Enqueue(ctx context.Context, in InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrOrchestratorClosed
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("conversation: failed to encode inbound message: %w", err)
	}

	if err := o.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("conversation: failed to enqueue inbound message: %w", err)
	}
	return nil
}

// Shutdown stops worker goroutines. Messages still in the queue survive the
// restart when SQS backs the orchestrator.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (o *Orchestrator) runWorker(workerID int) {
	defer o.wg.Done()
	o.logger.Debug("orchestrator worker started", slog.Int("worker_id", workerID))

	backoff := time.Second

	for {
		select {
		case <-o.ctx.Done():
			o.logger.Debug("orchestrator worker stopping", slog.Int("worker_id", workerID))
			return
		default:
		}

		messages, err := o.queue.Receive(o.ctx, o.cfg.receiveBatchSize, o.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Error("failed to receive inbound jobs",
				slog.String("error", err.Error()), slog.Int("worker_id", workerID))
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			o.handleQueueMessage(msg)
		}
	}
}

func (o *Orchestrator) handleQueueMessage(msg QueueMessage) {
	deleteMessage := func() {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.queue.Delete(deleteCtx, msg.ReceiptHandle); err != nil {
			o.logger.Error("failed to delete inbound job", slog.String("error", err.Error()))
		}
	}

	var in InboundMessage
	if err := json.Unmarshal([]byte(msg.Body), &in); err != nil {
		o.logger.Error("failed to decode inbound job", slog.String("error", err.Error()))
		deleteMessage()
		return
	}

	reply, err := o.processor.Process(o.ctx, in)
	if err != nil {
		o.logger.Error("failed to process inbound message",
			slog.String("user_id", in.UserID),
			slog.String("error", err.Error()))
		deleteMessage()
		return
	}
	deleteMessage()

	if reply == nil {
		return
	}
	if err := o.sender.SendReply(o.ctx, reply); err != nil {
		o.logger.Error("failed to deliver reply",
			slog.String("conversation_id", reply.ConversationID.String()),
			slog.String("error", err.Error()))
	}
}
