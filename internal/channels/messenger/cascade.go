package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/internal/observability/metrics"
	"github.com/cafepentagon/concierge/pkg/logging"
)

// RetryPolicy bounds how hard one delivery strategy is tried before the
// cascade advances. Permanent failures abort immediately regardless of the
// remaining attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy matches the platform's tolerance for repeated sends.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}

// Rehoster re-uploads an image to a host the platform accepts and returns
// the new URL.
type Rehoster interface {
	Rehost(ctx context.Context, imageURL string) (string, error)
}

// DeliverySender is the delivery surface the cascade drives. *Client
// implements it.
type DeliverySender interface {
	SendText(ctx context.Context, recipientID, text string) (*SendResponse, error)
	SendImageURL(ctx context.Context, recipientID, imageURL string) (*SendResponse, error)
	SendImageAttachment(ctx context.Context, recipientID, attachmentID string) (*SendResponse, error)
	SendImageURLVia(ctx context.Context, apiBase, recipientID, imageURL string) (*SendResponse, error)
	UploadAttachment(ctx context.Context, imageURL string) (string, error)
}

// Cascade delivers outbound replies through an ordered list of strategies.
// It never returns an error to its caller: the final strategy sends the raw
// URL as text, so the user always receives something.
type Cascade struct {
	sender   DeliverySender
	rehoster Rehoster
	policy   RetryPolicy
	altBases []string
	extended time.Duration
	metrics  *metrics.DeliveryMetrics
	logger   *logging.Logger
	sleep    func(time.Duration)
}

type CascadeOption func(*Cascade)

// WithRetryPolicy overrides the per-strategy retry policy.
func WithRetryPolicy(p RetryPolicy) CascadeOption {
	return func(c *Cascade) {
		if p.MaxAttempts > 0 {
			c.policy = p
		}
	}
}

// WithAlternateAPIBases sets the endpoint versions tried by the
// extended-timeout strategy.
func WithAlternateAPIBases(bases ...string) CascadeOption {
	return func(c *Cascade) { c.altBases = bases }
}

// WithDeliveryMetrics attaches delivery counters.
func WithDeliveryMetrics(m *metrics.DeliveryMetrics) CascadeOption {
	return func(c *Cascade) { c.metrics = m }
}

// NewCascade builds a delivery cascade. rehoster may be nil; strategy 2 is
// skipped without one.
func NewCascade(sender DeliverySender, rehoster Rehoster, logger *logging.Logger, opts ...CascadeOption) *Cascade {
	if sender == nil {
		panic("messenger: cascade requires a sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Cascade{
		sender:   sender,
		rehoster: rehoster,
		policy:   DefaultRetryPolicy,
		altBases: []string{"https://graph.facebook.com/v17.0", "https://graph.facebook.com/v19.0"},
		extended: 60 * time.Second,
		logger:   logger,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ conversation.ReplySender = (*Cascade)(nil)

// SendReply delivers one pipeline reply. Text goes out under the retry
// policy; an image additionally walks the full strategy cascade.
func (c *Cascade) SendReply(ctx context.Context, reply *conversation.Reply) error {
	if reply.Text != "" {
		c.sendTextWithRetry(ctx, reply.RecipientID, reply.Text)
	}
	if reply.ImageURL != "" {
		c.SendImage(ctx, reply.RecipientID, reply.ImageURL)
	}
	return nil
}

// SendImage walks the strategy cascade for one image. It always terminates
// in a confirmed send or the text fallback.
func (c *Cascade) SendImage(ctx context.Context, recipientID, imageURL string) {
	normalized := NormalizeImageURL(imageURL)

	strategies := []struct {
		name string
		run  func(context.Context) error
	}{
		{"direct_url", func(ctx context.Context) error {
			_, err := c.sender.SendImageURL(ctx, recipientID, normalized)
			return err
		}},
		{"rehosted_url", func(ctx context.Context) error {
			if c.rehoster == nil {
				return fmt.Errorf("%w: no rehoster configured", ErrPermanent)
			}
			rehosted, err := c.rehoster.Rehost(ctx, normalized)
			if err != nil {
				return err
			}
			_, err = c.sender.SendImageURL(ctx, recipientID, rehosted)
			return err
		}},
		{"attachment_upload", func(ctx context.Context) error {
			attachmentID, err := c.sender.UploadAttachment(ctx, normalized)
			if err != nil {
				return err
			}
			_, err = c.sender.SendImageAttachment(ctx, recipientID, attachmentID)
			return err
		}},
		{"alternate_endpoint", func(ctx context.Context) error {
			var lastErr error
			for _, base := range c.altBases {
				sendCtx, cancel := context.WithTimeout(ctx, c.extended)
				_, err := c.sender.SendImageURLVia(sendCtx, base, recipientID, normalized)
				cancel()
				if err == nil {
					return nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: no alternate endpoints configured", ErrPermanent)
			}
			return lastErr
		}},
	}

	for _, strategy := range strategies {
		if c.runWithRetry(ctx, strategy.name, strategy.run) {
			return
		}
	}

	// Final fallback: the user at least gets the link.
	c.logger.Warn("image delivery exhausted all strategies, sending URL as text",
		slog.String("recipient_id", recipientID),
		slog.String("image_url", imageURL))
	c.metrics.ObserveCascadeFailure()
	c.sendTextWithRetry(ctx, recipientID, normalized)
}

// runWithRetry applies the retry policy to one strategy. Returns true on
// success. Permanent failures abort the remaining attempts and advance.
func (c *Cascade) runWithRetry(ctx context.Context, name string, run func(context.Context) error) bool {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		err := run(ctx)
		if err == nil {
			c.metrics.ObserveAttempt(name, "success")
			return true
		}

		if IsPermanent(err) {
			c.metrics.ObserveAttempt(name, "permanent_failure")
			c.logger.Debug("delivery strategy rejected permanently",
				slog.String("strategy", name),
				slog.String("error", err.Error()))
			return false
		}

		c.metrics.ObserveAttempt(name, "transient_failure")
		c.logger.Debug("delivery strategy attempt failed",
			slog.String("strategy", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt < c.policy.MaxAttempts {
			c.sleep(c.policy.Delay)
		}
	}
	return false
}

func (c *Cascade) sendTextWithRetry(ctx context.Context, recipientID, text string) {
	ok := c.runWithRetry(ctx, "text", func(ctx context.Context) error {
		_, err := c.sender.SendText(ctx, recipientID, text)
		return err
	})
	if !ok {
		c.logger.Error("text delivery failed after all attempts",
			slog.String("recipient_id", recipientID))
	}
}

var duplicateSlashes = regexp.MustCompile(`([^:])//+`)

// NormalizeImageURL forces HTTPS and collapses duplicated path separators.
// Platform URL validation rejects both plain HTTP and sloppy paths.
func NormalizeImageURL(raw string) string {
	url := strings.TrimSpace(raw)
	if strings.HasPrefix(url, "http://") {
		url = "https://" + strings.TrimPrefix(url, "http://")
	}
	return duplicateSlashes.ReplaceAllString(url, "$1/")
}
