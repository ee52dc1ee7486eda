package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/curator/internal/models"
)

func sampleReport() models.Report {
	return models.Report{
		ID:                 "0f8e2c1a-2b4d-4c6e-8a0b-1c2d3e4f5a6b",
		GeneratedAt:        time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		Title:              "Weekly Digest 2025-03-14",
		Markdown:           "# Weekly Digest\n\n- **GPT-5** ships\n",
		Status:             models.ReportPendingReview,
		IncludedArticleIDs: []string{"a", "b"},
		Tags:               []string{"AI Technology"},
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(html), "<h1>Title</h1>") {
		t.Errorf("expected heading, got %s", html)
	}
	if !strings.Contains(string(html), "<table>") {
		t.Errorf("expected GFM table, got %s", html)
	}
}

func TestFilePublisherWritesMarkdownAndHTML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "published")
	p := NewFilePublisher(dir)
	r := sampleReport()

	if err := p.Publish(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := filepath.Join(dir, "2025-03-14-weekly-digest-2025-03-14-0f8e2c1a")
	md, err := os.ReadFile(base + ".md")
	if err != nil {
		t.Fatalf("expected markdown file: %v", err)
	}
	if string(md) != r.Markdown {
		t.Errorf("unexpected markdown %q", md)
	}

	html, err := os.ReadFile(base + ".html")
	if err != nil {
		t.Fatalf("expected html file: %v", err)
	}
	for _, want := range []string{"<title>Weekly Digest 2025-03-14</title>", "<strong>GPT-5</strong>", "AI Technology"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("expected html to contain %q", want)
		}
	}

	// Re-publishing overwrites in place.
	r.Markdown = "# Edited\n"
	if err := p.Publish(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	md, _ = os.ReadFile(base + ".md")
	if string(md) != "# Edited\n" {
		t.Errorf("expected overwrite, got %q", md)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 files, got %d", len(entries))
	}
}

func TestFileNameFallbackSlug(t *testing.T) {
	r := sampleReport()
	r.Title = "!!!"
	r.ID = "1"
	if got := FileName(r); got != "2025-03-14-report-1" {
		t.Errorf("unexpected file name %q", got)
	}
}

func TestWebhookPublisher(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, "secret", time.Second)
	if err := p.Publish(context.Background(), sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if got.Title != "Weekly Digest 2025-03-14" || len(got.IncludedArticleIDs) != 2 {
		t.Errorf("unexpected payload %+v", got)
	}
	if !strings.Contains(got.HTML, "<strong>GPT-5</strong>") {
		t.Errorf("expected rendered html, got %q", got.HTML)
	}
}

func TestWebhookPublisherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no auth header without token")
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookPublisher(srv.URL, "", time.Second).Publish(context.Background(), sampleReport()); err == nil {
		t.Error("expected error for 502")
	}
	if err := NewWebhookPublisher("", "", time.Second).Publish(context.Background(), sampleReport()); err == nil {
		t.Error("expected error without url")
	}
}
