package collect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/curator/internal/models"
)

// readFeed parses one feed and returns up to max entries published after
// cutoff that match a keyword.
func (c *Collector) readFeed(ctx context.Context, feedURL string, keywords []string, cutoff time.Time) ([]models.RawItem, error) {
	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = extractSourceName(feedURL)
	}

	var items []models.RawItem
	for _, entry := range feed.Items {
		if len(items) >= c.MaxPerFeed {
			break
		}
		item, ok := toRawItem(entry, source)
		if !ok || !published(entry, cutoff) {
			continue
		}
		if !matchesKeywords(item, keywords) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func toRawItem(entry *gofeed.Item, source string) (models.RawItem, bool) {
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return models.RawItem{}, false
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}
	return models.RawItem{
		Title:   title,
		URL:     link,
		Content: htmlToText(body),
		Source:  source,
	}, true
}

// published reports whether entry is newer than cutoff. Undated entries pass.
func published(entry *gofeed.Item, cutoff time.Time) bool {
	at := entry.PublishedParsed
	if at == nil {
		at = entry.UpdatedParsed
	}
	if at == nil || cutoff.IsZero() {
		return true
	}
	return !at.Before(cutoff)
}

// matchesKeywords reports whether the title or content contains any keyword,
// ignoring case. An empty keyword list matches everything.
func matchesKeywords(item models.RawItem, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(item.Title + "\n" + item.Content)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

// htmlToText flattens an HTML fragment to whitespace-normalized text.
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("p, br, li, h1, h2, h3, h4, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	name := host
	if parts := strings.Split(host, "."); len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if name == "" {
		return feedURL
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
