package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/curator/internal/models"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>%s</title>
<link>https://example.com</link><description>test</description>
%s
</channel></rss>`

func rssItem(title, link, desc string, pub time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description><pubDate>%s</pubDate></item>`,
		title, link, desc, pub.Format(time.RFC1123Z))
}

var now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestCollector() *Collector {
	c := New(nil, 7)
	c.Now = func() time.Time { return now }
	return c
}

func feedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCollectFiltersByKeyword(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/ai.xml": fmt.Sprintf(rssTemplate, "AI Weekly",
			rssItem("New LLM released", "https://example.com/llm", "<p>A <b>large</b> language model.</p>", now.Add(-time.Hour))+
				rssItem("Gardening tips", "https://example.com/garden", "Tomatoes", now.Add(-time.Hour))+
				rssItem("Robots", "https://example.com/robots", "Machine learning on the edge", now.Add(-2*time.Hour))),
	})

	items, err := newTestCollector().Collect(context.Background(), []string{srv.URL + "/ai.xml"}, []string{"llm", "Machine Learning"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 matching items, got %d: %+v", len(items), items)
	}
	if items[0].Title != "New LLM released" || items[1].Title != "Robots" {
		t.Errorf("unexpected items %+v", items)
	}
	if items[0].Source != "AI Weekly" {
		t.Errorf("expected source from feed title, got %q", items[0].Source)
	}
	if items[0].Content != "A large language model." {
		t.Errorf("expected HTML stripped, got %q", items[0].Content)
	}
}

func TestCollectWithoutKeywordsKeepsAll(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/feed": fmt.Sprintf(rssTemplate, "Feed",
			rssItem("One", "https://example.com/1", "x", now)+rssItem("Two", "https://example.com/2", "y", now)),
	})
	items, err := newTestCollector().Collect(context.Background(), []string{srv.URL + "/feed"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestCollectSkipsOldAndCapsPerFeed(t *testing.T) {
	var entries strings.Builder
	for i := 0; i < 25; i++ {
		entries.WriteString(rssItem(fmt.Sprintf("Item %d", i), fmt.Sprintf("https://example.com/%d", i), "body", now.Add(-time.Duration(i)*time.Minute)))
	}
	entries.WriteString(rssItem("Ancient", "https://example.com/old", "body", now.AddDate(0, 0, -30)))

	srv := feedServer(t, map[string]string{"/feed": fmt.Sprintf(rssTemplate, "Feed", entries.String())})
	items, err := newTestCollector().Collect(context.Background(), []string{srv.URL + "/feed"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != DefaultMaxPerFeed {
		t.Errorf("expected %d items, got %d", DefaultMaxPerFeed, len(items))
	}
	for _, it := range items {
		if it.Title == "Ancient" {
			t.Error("expected entries outside the window to be dropped")
		}
	}
}

func TestCollectDropsRepeatedLinks(t *testing.T) {
	body := fmt.Sprintf(rssTemplate, "Feed", rssItem("Same", "https://example.com/same", "x", now))
	srv := feedServer(t, map[string]string{"/a": body, "/b": body})

	items, err := newTestCollector().Collect(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected duplicate link to be dropped, got %d items", len(items))
	}
}

func TestCollectPartialAndTotalFailure(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/ok": fmt.Sprintf(rssTemplate, "Feed", rssItem("One", "https://example.com/1", "x", now)),
	})
	c := newTestCollector()

	items, err := c.Collect(context.Background(), []string{srv.URL + "/missing", srv.URL + "/ok"}, nil)
	if err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	if _, err := c.Collect(context.Background(), []string{srv.URL + "/missing"}, nil); err == nil {
		t.Error("expected error when every feed fails")
	}
}

func TestCollectNoTargets(t *testing.T) {
	items, err := newTestCollector().Collect(context.Background(), nil, []string{"ai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestMatchesKeywords(t *testing.T) {
	item := models.RawItem{Title: "Generative AI in banks", Content: "..."}
	if !matchesKeywords(item, []string{" generative ai "}) {
		t.Error("expected case-insensitive trimmed match")
	}
	if matchesKeywords(item, []string{"robotics"}) {
		t.Error("expected no match")
	}
}

func TestExtractSourceName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.theverge.com/rss/index.xml", "Theverge"},
		{"https://blog.openai.com/feed", "Openai"},
		{"https://feeds.arstechnica.com/arstechnica/index", "Arstechnica"},
		{"https://localhost/feed", "Localhost"},
		{"https://feeds./rss", "https://feeds./rss"},
		{"https://news..com/rss", "https://news..com/rss"},
	}
	for _, c := range cases {
		if got := extractSourceName(c.in); got != c.want {
			t.Errorf("extractSourceName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<div><p>First&nbsp;para</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul></div>")
	if got != "First para one two" {
		t.Errorf("unexpected text %q", got)
	}
}
