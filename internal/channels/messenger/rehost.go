package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const imgurUploadURL = "https://api.imgur.com/3/image"

// ImgurRehoster re-uploads images to Imgur, whose URLs the Graph API accepts
// where arbitrary hosts are rejected.
type ImgurRehoster struct {
	clientID   string
	uploadURL  string
	httpClient *http.Client
}

// NewImgurRehoster creates a rehoster. clientID is the Imgur API client id.
func NewImgurRehoster(clientID string) *ImgurRehoster {
	return &ImgurRehoster{
		clientID:   clientID,
		uploadURL:  imgurUploadURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetUploadURL overrides the Imgur endpoint (useful for testing).
func (r *ImgurRehoster) SetUploadURL(url string) {
	r.uploadURL = url
}

var _ Rehoster = (*ImgurRehoster)(nil)

// Rehost downloads imageURL and uploads the bytes to Imgur, returning the
// new public link.
func (r *ImgurRehoster) Rehost(ctx context.Context, imageURL string) (string, error) {
	data, err := r.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "image")
	if err != nil {
		return "", fmt.Errorf("messenger: build imgur upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("messenger: build imgur upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("messenger: build imgur upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("messenger: create imgur request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+r.clientID)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("messenger: imgur upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("messenger: imgur upload status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Link string `json:"link"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("messenger: decode imgur response: %w", err)
	}
	if !result.Success || result.Data.Link == "" {
		return "", fmt.Errorf("messenger: imgur upload rejected")
	}
	return result.Data.Link, nil
}

func (r *ImgurRehoster) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("messenger: create download request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messenger: download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messenger: image download status %d", resp.StatusCode)
	}

	const maxImageBytes = 10 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("messenger: read image: %w", err)
	}
	return data, nil
}
