package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestImgurRehost(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("fake-image-bytes"))
	}))
	defer origin.Close()

	imgur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Client-ID test_client" {
			t.Errorf("auth header = %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"link": "https://i.imgur.com/abc.jpg"},
		})
	}))
	defer imgur.Close()

	r := NewImgurRehoster("test_client")
	r.SetUploadURL(imgur.URL)

	link, err := r.Rehost(context.Background(), origin.URL+"/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if link != "https://i.imgur.com/abc.jpg" {
		t.Errorf("link = %s", link)
	}
}

func TestImgurRehostDownloadFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer origin.Close()

	r := NewImgurRehoster("test_client")
	if _, err := r.Rehost(context.Background(), origin.URL+"/missing.jpg"); err == nil {
		t.Fatal("expected error when the source image cannot be downloaded")
	}
}

func TestImgurRehostUploadRejected(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer origin.Close()

	imgur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer imgur.Close()

	r := NewImgurRehoster("test_client")
	r.SetUploadURL(imgur.URL)

	if _, err := r.Rehost(context.Background(), origin.URL+"/a.jpg"); err == nil {
		t.Fatal("expected error when imgur rejects the upload")
	}
}
