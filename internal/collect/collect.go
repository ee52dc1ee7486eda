// Package collect gathers raw items from RSS and Atom feeds.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/curator/internal/fetch"
	"github.com/TobiSchelling/curator/internal/models"
)

// DefaultMaxPerFeed caps the entries taken from a single feed.
const DefaultMaxPerFeed = 20

// Collector reads every target URL as a feed. It implements pipeline.Collector.
type Collector struct {
	parser  *gofeed.Parser
	fetcher *fetch.Fetcher

	MaxPerFeed int
	DaysBack   int
	Now        func() time.Time
}

// New creates a collector. fetcher may be nil to skip full-text extraction.
func New(fetcher *fetch.Fetcher, daysBack int) *Collector {
	return &Collector{
		parser:     gofeed.NewParser(),
		fetcher:    fetcher,
		MaxPerFeed: DefaultMaxPerFeed,
		DaysBack:   daysBack,
		Now:        time.Now,
	}
}

// Collect parses each target, keeps entries matching a keyword and drops
// repeated links within this run. A failing feed is skipped; the call fails
// only when every target fails.
func (c *Collector) Collect(ctx context.Context, targetURLs, keywords []string) ([]models.RawItem, error) {
	var cutoff time.Time
	if c.DaysBack > 0 {
		cutoff = c.Now().AddDate(0, 0, -c.DaysBack)
	}

	var (
		items []models.RawItem
		errs  []error
		seen  = make(map[string]bool)
		tried int
	)
	for _, target := range targetURLs {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tried++

		log.Printf("Collecting from %s...", target)
		entries, err := c.readFeed(ctx, target, keywords, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", target, err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		for _, e := range entries {
			if seen[e.URL] {
				continue
			}
			seen[e.URL] = true
			items = append(items, e)
		}
		log.Printf("Parsed %d matching entries from %s", len(entries), target)
	}

	if tried > 0 && len(errs) == tried {
		return nil, fmt.Errorf("all %d feeds failed: %w", tried, errors.Join(errs...))
	}

	if c.fetcher != nil {
		c.fetcher.FillMissing(ctx, items)
	}
	log.Printf("Collection complete: %d items from %d feeds (%d failed)", len(items), tried, len(errs))
	return items, nil
}
