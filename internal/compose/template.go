package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/curator/internal/models"
)

const summaryChars = 200

// TemplateGenerator renders a digest without a model. Articles are grouped
// by category in configured order; the prompt template is ignored.
type TemplateGenerator struct {
	settings SettingsSource
}

// NewTemplateGenerator creates a template generator. src may be nil, in which
// case categories appear in the order they are first seen.
func NewTemplateGenerator(src SettingsSource) *TemplateGenerator {
	return &TemplateGenerator{settings: src}
}

// Generate implements report.Generator.
func (g *TemplateGenerator) Generate(ctx context.Context, articles []models.Article, _ string) (string, error) {
	if len(articles) == 0 {
		return "", errors.New("no articles to write about")
	}

	var order []string
	if g.settings != nil {
		cfg, err := g.settings.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("loading categories: %w", err)
		}
		order = cfg.Categories
	}

	groups := make(map[string][]models.Article)
	var seen []string
	for _, a := range articles {
		c := a.Category()
		if c == "" {
			c = "Uncategorized"
		}
		if _, ok := groups[c]; !ok {
			seen = append(seen, c)
		}
		groups[c] = append(groups[c], a)
	}

	var b strings.Builder
	b.WriteString("# AI Digest\n\n")
	fmt.Fprintf(&b, "This edition covers %d selected %s.\n", len(articles), plural(len(articles), "article", "articles"))

	for _, c := range sectionOrder(order, seen) {
		fmt.Fprintf(&b, "\n## %s\n", c)
		for _, a := range groups[c] {
			fmt.Fprintf(&b, "\n### [%s](%s)\n", a.Title, a.URL)
			if a.Source != "" {
				fmt.Fprintf(&b, "- **Source**: %s\n", a.Source)
			}
			if a.Assessment != nil {
				fmt.Fprintf(&b, "- **Score**: %d/5\n", a.Score())
			}
			if s := truncate(a.Content, summaryChars); s != "" {
				fmt.Fprintf(&b, "- **Summary**: %s\n", s)
			}
		}
	}
	return b.String(), nil
}

// sectionOrder lists configured categories that are present, then the rest
// in first-seen order.
func sectionOrder(configured, seen []string) []string {
	present := make(map[string]bool, len(seen))
	for _, c := range seen {
		present[c] = true
	}
	out := make([]string, 0, len(seen))
	used := make(map[string]bool, len(seen))
	for _, c := range configured {
		if present[c] && !used[c] {
			out = append(out, c)
			used[c] = true
		}
	}
	for _, c := range seen {
		if !used[c] {
			out = append(out, c)
			used[c] = true
		}
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
