//go:build ignore

// Seeds the knowledge base through the admin API.
//
// Usage: go run scripts/seed-knowledge.go <knowledge-file.json>
//
// The file holds one batch per namespace:
//
//	{"batches": [{"namespace": "menu", "documents": [{"content": "...", "metadata": {...}}]}]}
//
// ADMIN_JWT must hold a token signed with the server's ADMIN_JWT_SECRET.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type seedFile struct {
	Batches []seedBatch `json:"batches"`
}

type seedBatch struct {
	Namespace string         `json:"namespace"`
	Documents []seedDocument `json:"documents"`
}

type seedDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-knowledge.go <knowledge-file.json>")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token := os.Getenv("ADMIN_JWT")
	if token == "" {
		fmt.Println("ADMIN_JWT is required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("read knowledge file: %v\n", err)
		os.Exit(1)
	}
	var file seedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		fmt.Printf("parse knowledge file: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	for _, batch := range file.Batches {
		body, _ := json.Marshal(map[string]any{
			"namespace": batch.Namespace,
			"documents": batch.Documents,
		})
		req, err := http.NewRequest(http.MethodPost, apiURL+"/admin/knowledge", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("build request: %v\n", err)
			os.Exit(1)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("ingest %s: %v\n", batch.Namespace, err)
			os.Exit(1)
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("ingest %s: status %d: %s\n", batch.Namespace, resp.StatusCode, respBody)
			os.Exit(1)
		}
		fmt.Printf("seeded %s: %d documents\n", batch.Namespace, len(batch.Documents))
	}
	fmt.Println("knowledge base seeded")
}
