// Package fetch fills in article text for feed items that only carry a link.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/curator/internal/models"
)

// MinContentChars is the shortest extracted text accepted as article content.
const MinContentChars = 100

const maxBodyBytes = 5 << 20

// Result holds the counters of a FillMissing run.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// Fetcher downloads pages and extracts the readable text.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a fetcher with the given per-request timeout.
func New(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: "curator/1.0 (digest collector)",
	}
}

// FillMissing extracts content for every item with empty Content, in place.
// After an HTTP error status from a host, remaining items from that host are
// skipped.
func (f *Fetcher) FillMissing(ctx context.Context, items []models.RawItem) *Result {
	r := &Result{}
	failedHosts := make(map[string]bool)

	for i := range items {
		if strings.TrimSpace(items[i].Content) != "" {
			continue
		}
		if ctx.Err() != nil {
			r.Skipped++
			continue
		}

		host := hostOf(items[i].URL)
		if failedHosts[host] {
			r.Skipped++
			continue
		}

		text, err := f.Extract(ctx, items[i].URL)
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			r.Failed++
			if host != "" {
				failedHosts[host] = true
			}
			log.Printf("HTTP %d for %s, skipping remaining from %s", statusErr.Code, items[i].URL, host)
		case err != nil:
			r.Failed++
			log.Printf("Fetch failed for %s: %v", items[i].URL, err)
		case text == "":
			r.Failed++
			log.Printf("No extractable content from: %s", items[i].URL)
		default:
			items[i].Content = text
			r.Fetched++
		}
	}

	if r.Fetched+r.Failed+r.Skipped > 0 {
		log.Printf("Content fetch complete: %d fetched, %d failed, %d skipped", r.Fetched, r.Failed, r.Skipped)
	}
	return r
}

// Extract downloads pageURL and returns its readable text, or "" when the
// page has too little text.
func (f *Fetcher) Extract(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &StatusError{Code: resp.StatusCode}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), parsed)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < MinContentChars {
		return "", nil
	}
	return text, nil
}

// StatusError is an HTTP error status returned by a page.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
