package messenger

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"page","entry":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"wrong prefix", secret, body, "sha512=" + hex.EncodeToString(mac.Sum(nil)), false},
		{"prefix only", secret, body, "sha256=", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("my_verify_token", "secret", nil)

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Fatalf("expected CHALLENGE_123, got %s", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestHandleInbound(t *testing.T) {
	secret := "app_secret"
	event := WebhookEvent{
		Object: "page",
		Entry: []Entry{{
			ID:   "page_1",
			Time: 1700000000000,
			Messaging: []Messaging{{
				Sender:    Sender{ID: "psid_1"},
				Recipient: Recipient{ID: "page_1"},
				Timestamp: 1700000000000,
				Message:   &Message{MID: "mid_1", Text: "hello"},
			}},
		}},
	}
	body, _ := json.Marshal(event)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	t.Run("valid event dispatches message", func(t *testing.T) {
		var got []ParsedInboundMessage
		h := NewWebhookHandler("token", secret, func(msg ParsedInboundMessage) {
			got = append(got, msg)
		})

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sig)
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if len(got) != 1 || got[0].Text != "hello" || got[0].SenderID != "psid_1" {
			t.Fatalf("parsed messages = %#v", got)
		}
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		called := false
		h := NewWebhookHandler("token", secret, func(ParsedInboundMessage) { called = true })

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if called {
			t.Fatal("handler dispatched a message with a bad signature")
		}
	})
}

func TestParseWebhookEvent(t *testing.T) {
	t.Run("image attachment", func(t *testing.T) {
		msg := &Message{MID: "mid_2"}
		msg.Attachments = []InboundAttachment{{Type: "image"}}
		msg.Attachments[0].Payload.URL = "https://cdn.fbsbx.com/photo.jpg"

		event := WebhookEvent{Entry: []Entry{{Messaging: []Messaging{{
			Sender:  Sender{ID: "psid_2"},
			Message: msg,
		}}}}}

		parsed := ParseWebhookEvent(event)
		if len(parsed) != 1 {
			t.Fatalf("parsed %d messages, want 1", len(parsed))
		}
		if parsed[0].ImageURL != "https://cdn.fbsbx.com/photo.jpg" {
			t.Fatalf("image url = %s", parsed[0].ImageURL)
		}
	})

	t.Run("postback", func(t *testing.T) {
		event := WebhookEvent{Entry: []Entry{{Messaging: []Messaging{{
			Sender:   Sender{ID: "psid_3"},
			Postback: &Postback{Title: "View Menu", Payload: "MENU"},
		}}}}}

		parsed := ParseWebhookEvent(event)
		if len(parsed) != 1 || !parsed[0].IsPostback {
			t.Fatalf("parsed = %#v", parsed)
		}
		if parsed[0].PostbackPayload != "MENU" {
			t.Fatalf("payload = %s", parsed[0].PostbackPayload)
		}
	})

	t.Run("delivery receipts ignored", func(t *testing.T) {
		event := WebhookEvent{Entry: []Entry{{Messaging: []Messaging{{
			Sender: Sender{ID: "psid_4"},
		}}}}}

		if parsed := ParseWebhookEvent(event); len(parsed) != 0 {
			t.Fatalf("expected no messages, got %#v", parsed)
		}
	})
}
