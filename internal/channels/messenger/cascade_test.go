package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cafepentagon/concierge/internal/conversation"
)

// scriptedSender fails or succeeds per method according to its script.
type scriptedSender struct {
	mu    sync.Mutex
	calls []string

	textErr       error
	imageURLErr   error
	attachmentErr error
	uploadErr     error
	altErr        error

	uploadID string
}

func (s *scriptedSender) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *scriptedSender) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *scriptedSender) SendText(_ context.Context, _, _ string) (*SendResponse, error) {
	s.record("text")
	return &SendResponse{MessageID: "mid_text"}, s.textErr
}

func (s *scriptedSender) SendImageURL(_ context.Context, _, _ string) (*SendResponse, error) {
	s.record("image_url")
	return &SendResponse{MessageID: "mid_img"}, s.imageURLErr
}

func (s *scriptedSender) SendImageAttachment(_ context.Context, _, _ string) (*SendResponse, error) {
	s.record("image_attachment")
	return &SendResponse{MessageID: "mid_att"}, s.attachmentErr
}

func (s *scriptedSender) SendImageURLVia(_ context.Context, _, _, _ string) (*SendResponse, error) {
	s.record("alt_endpoint")
	return &SendResponse{MessageID: "mid_alt"}, s.altErr
}

func (s *scriptedSender) UploadAttachment(_ context.Context, _ string) (string, error) {
	s.record("upload")
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if s.uploadID == "" {
		return "att_1", nil
	}
	return s.uploadID, nil
}

type stubRehoster struct {
	url   string
	err   error
	calls int
}

func (s *stubRehoster) Rehost(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.url, s.err
}

func newTestCascade(sender DeliverySender, rehoster Rehoster) *Cascade {
	c := NewCascade(sender, rehoster, nil, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}))
	c.sleep = func(time.Duration) {}
	return c
}

func TestCascadeFirstStrategySucceeds(t *testing.T) {
	sender := &scriptedSender{}
	c := newTestCascade(sender, &stubRehoster{})

	c.SendImage(context.Background(), "psid_1", "https://cdn.example.com/a.jpg")

	if n := sender.callCount("image_url"); n != 1 {
		t.Fatalf("direct sends = %d, want 1", n)
	}
	if n := sender.callCount("upload"); n != 0 {
		t.Fatal("later strategies ran after success")
	}
}

func TestCascadePermanentFailureAdvancesWithoutRetry(t *testing.T) {
	// Strategy 1 gets a 404-class rejection: no retries of strategy 1, the
	// cascade advances within the same call.
	sender := &scriptedSender{
		imageURLErr: fmt.Errorf("%w: API error 100: no matching user", ErrPermanent),
	}
	rehoster := &stubRehoster{err: errors.New("rehost down")}
	c := newTestCascade(sender, rehoster)

	c.SendImage(context.Background(), "psid_1", "https://cdn.example.com/a.jpg")

	// Strategy 1 called once per cascade pass for direct + once per rehost
	// attempt is not possible: permanent error aborts at the first call.
	if n := sender.callCount("image_url"); n != 1 {
		t.Fatalf("direct url attempts = %d, want 1 (no retries on permanent failure)", n)
	}
	if n := sender.callCount("upload"); n == 0 {
		t.Fatal("cascade did not advance to the attachment strategy")
	}
}

func TestCascadeTransientFailureRetriesBeforeAdvancing(t *testing.T) {
	sender := &scriptedSender{
		imageURLErr: errors.New("timeout"),
	}
	rehoster := &stubRehoster{url: "https://i.imgur.com/x.jpg", err: errors.New("down")}
	c := newTestCascade(sender, rehoster)

	c.SendImage(context.Background(), "psid_1", "https://cdn.example.com/a.jpg")

	if n := sender.callCount("image_url"); n != 3 {
		t.Fatalf("direct url attempts = %d, want 3 (full retry budget)", n)
	}
}

func TestCascadeAllStrategiesFailFallsBackToText(t *testing.T) {
	sender := &scriptedSender{
		imageURLErr:   errors.New("timeout"),
		uploadErr:     errors.New("timeout"),
		attachmentErr: errors.New("timeout"),
		altErr:        errors.New("timeout"),
	}
	rehoster := &stubRehoster{err: errors.New("down")}
	c := newTestCascade(sender, rehoster)

	c.SendImage(context.Background(), "psid_1", "http://cdn.example.com//menu//photo.jpg")

	if n := sender.callCount("text"); n != 1 {
		t.Fatalf("text fallback sends = %d, want 1", n)
	}
}

func TestCascadeRehostedURLSucceeds(t *testing.T) {
	sender := &scriptedSender{}
	// First direct send fails permanently; rehosted URL send succeeds.
	sender.imageURLErr = fmt.Errorf("%w: url rejected", ErrPermanent)
	rehoster := &stubRehoster{url: "https://i.imgur.com/ok.jpg"}
	c := newTestCascade(sender, rehoster)

	// After the rehoster returns, the next SendImageURL call must succeed.
	calls := 0
	orig := sender.imageURLErr
	c.sender = senderFunc{scriptedSender: sender, onImageURL: func() error {
		calls++
		if calls == 1 {
			return orig
		}
		return nil
	}}

	c.SendImage(context.Background(), "psid_1", "https://cdn.example.com/a.jpg")

	if rehoster.calls != 1 {
		t.Fatalf("rehoster calls = %d, want 1", rehoster.calls)
	}
	if n := sender.callCount("upload"); n != 0 {
		t.Fatal("cascade kept going after the rehosted send succeeded")
	}
}

// senderFunc overrides SendImageURL behavior per call.
type senderFunc struct {
	*scriptedSender
	onImageURL func() error
}

func (s senderFunc) SendImageURL(_ context.Context, _, _ string) (*SendResponse, error) {
	s.record("image_url")
	return &SendResponse{}, s.onImageURL()
}

func TestCascadeSendReplyTextOnly(t *testing.T) {
	sender := &scriptedSender{}
	c := newTestCascade(sender, nil)

	err := c.SendReply(context.Background(), &conversation.Reply{
		RecipientID: "psid_1",
		Text:        "hello",
	})
	if err != nil {
		t.Fatalf("SendReply error: %v", err)
	}
	if n := sender.callCount("text"); n != 1 {
		t.Fatalf("text sends = %d, want 1", n)
	}
	if n := sender.callCount("image_url"); n != 0 {
		t.Fatal("image strategy ran for a text-only reply")
	}
}

func TestNormalizeImageURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"https://cdn.example.com//menu//a.jpg", "https://cdn.example.com/menu/a.jpg"},
		{" https://cdn.example.com/a.jpg ", "https://cdn.example.com/a.jpg"},
		{"https://ok.example.com/a.jpg", "https://ok.example.com/a.jpg"},
	}
	for _, tc := range cases {
		if got := NormalizeImageURL(tc.in); got != tc.want {
			t.Errorf("NormalizeImageURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
