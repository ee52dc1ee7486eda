package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/curator/internal/models"
)

// WebhookPublisher posts reports as JSON to an HTTP endpoint.
type WebhookPublisher struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookPublisher creates a webhook publisher. token, when set, is sent
// as a bearer token.
func NewWebhookPublisher(url, token string, timeout time.Duration) *WebhookPublisher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookPublisher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Markdown           string    `json:"markdown"`
	HTML               string    `json:"html"`
	Tags               []string  `json:"tags"`
	IncludedArticleIDs []string  `json:"includedArticleIds"`
}

// Publish sends the report. Any non-2xx status is an error.
func (p *WebhookPublisher) Publish(ctx context.Context, r models.Report) error {
	if p.url == "" {
		return errors.New("webhook publisher misconfigured: no url")
	}

	html, err := RenderHTML(r.Markdown)
	if err != nil {
		return err
	}
	data, err := json.Marshal(webhookPayload{
		ID:                 r.ID,
		Title:              r.Title,
		GeneratedAt:        r.GeneratedAt,
		Markdown:           r.Markdown,
		HTML:               string(html),
		Tags:               r.Tags,
		IncludedArticleIDs: r.IncludedArticleIDs,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
