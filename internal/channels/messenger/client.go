package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 30 * time.Second
	extendedHTTPTimeout = 60 * time.Second
)

// ErrPermanent marks a Graph API rejection that no amount of retrying will
// fix (bad request, auth failure, unknown recipient).
var ErrPermanent = errors.New("messenger: permanent send failure")

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Client sends messages via the Messenger Graph API. Alternate-endpoint
// sends run on a separate client with a longer per-request timeout, since
// they are the cascade's last network attempt before the text fallback.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
	slowHTTPClient  *http.Client
}

// NewClient creates a new Graph API client.
func NewClient(pageAccessToken string) *Client {
	return &Client{
		pageAccessToken: pageAccessToken,
		graphAPIBase:    defaultGraphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
		slowHTTPClient:  &http.Client{Timeout: extendedHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

// SetHTTPTimeout overrides the per-request timeout for regular sends.
func (c *Client) SetHTTPTimeout(d time.Duration) {
	c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
}

// SetExtendedHTTPTimeout overrides the per-request timeout for
// alternate-endpoint sends.
func (c *Client) SetExtendedHTTPTimeout(d time.Duration) {
	c.slowHTTPClient = &http.Client{Timeout: d, Transport: c.slowHTTPClient.Transport}
}

// SendText sends a plain text message to the given recipient.
func (c *Client) SendText(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message:   SendMessage{Text: text},
	}
	return c.send(ctx, c.httpClient, c.graphAPIBase, req)
}

// SendImageURL sends an image by URL.
func (c *Client) SendImageURL(ctx context.Context, recipientID, imageURL string) (*SendResponse, error) {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message: SendMessage{
			Attachment: &Attachment{
				Type:    "image",
				Payload: Payload{URL: imageURL, IsReusable: true},
			},
		},
	}
	return c.send(ctx, c.httpClient, c.graphAPIBase, req)
}

// SendImageAttachment sends a previously uploaded image by attachment id.
func (c *Client) SendImageAttachment(ctx context.Context, recipientID, attachmentID string) (*SendResponse, error) {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message: SendMessage{
			Attachment: &Attachment{
				Type:    "image",
				Payload: Payload{AttachmentID: attachmentID},
			},
		},
	}
	return c.send(ctx, c.httpClient, c.graphAPIBase, req)
}

// SendImageURLVia sends an image by URL against an alternate Graph API base,
// e.g. a different API version, with the extended per-request timeout.
func (c *Client) SendImageURLVia(ctx context.Context, apiBase, recipientID, imageURL string) (*SendResponse, error) {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message: SendMessage{
			Attachment: &Attachment{
				Type:    "image",
				Payload: Payload{URL: imageURL, IsReusable: true},
			},
		},
	}
	return c.send(ctx, c.slowHTTPClient, apiBase, req)
}

// UploadAttachment uploads an image URL through the message_attachments
// endpoint and returns the reusable attachment id.
func (c *Client) UploadAttachment(ctx context.Context, imageURL string) (string, error) {
	req := SendRequest{
		Message: SendMessage{
			Attachment: &Attachment{
				Type:    "image",
				Payload: Payload{URL: imageURL, IsReusable: true},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("messenger: marshal upload request: %w", err)
	}

	url := fmt.Sprintf("%s/me/message_attachments?access_token=%s", c.graphAPIBase, c.pageAccessToken)
	resp, err := c.post(ctx, c.httpClient, url, body)
	if err != nil {
		return "", err
	}
	if resp.AttachmentID == "" {
		return "", fmt.Errorf("messenger: upload returned no attachment id")
	}
	return resp.AttachmentID, nil
}

// GetUserProfile fetches the public profile for a PSID. Used to greet users
// by name; failures are not fatal to any turn.
func (c *Client) GetUserProfile(ctx context.Context, psid string) (*UserProfile, error) {
	url := fmt.Sprintf("%s/%s?fields=id,first_name,last_name,profile_pic&access_token=%s",
		c.graphAPIBase, psid, c.pageAccessToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("messenger: create profile request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messenger: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messenger: profile fetch status %d", resp.StatusCode)
	}

	var profile UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("messenger: decode profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) send(ctx context.Context, httpClient *http.Client, apiBase string, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", apiBase, c.pageAccessToken)
	return c.post(ctx, httpClient, url, body)
}

func (c *Client) post(ctx context.Context, httpClient *http.Client, url string, body []byte) (*SendResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("messenger: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messenger: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("messenger: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("messenger: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, classifyStatus(resp.StatusCode,
			fmt.Errorf("messenger: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message))
	}

	if resp.StatusCode != http.StatusOK {
		return &sendResp, classifyStatus(resp.StatusCode,
			fmt.Errorf("messenger: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	return &sendResp, nil
}

// classifyStatus wraps client-error rejections with ErrPermanent so the
// cascade can abort retries and advance immediately.
func classifyStatus(status int, err error) error {
	if status >= 400 && status < 500 {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}
