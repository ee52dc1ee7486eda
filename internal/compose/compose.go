// Package compose writes the markdown body of a digest report.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/curator/internal/llm"
	"github.com/TobiSchelling/curator/internal/models"
)

const contextIntro = "Here are the source articles to include:"

// MaxContextChars bounds the content of each article in the LLM prompt.
const MaxContextChars = 2000

// SettingsSource supplies the configured category order.
type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

// LLMGenerator writes the digest with a language model, using the configured
// prompt template followed by an article context block.
type LLMGenerator struct {
	provider  llm.Provider
	maxTokens int
}

// NewLLMGenerator creates an LLM-backed generator.
func NewLLMGenerator(provider llm.Provider, maxTokens int) *LLMGenerator {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LLMGenerator{provider: provider, maxTokens: maxTokens}
}

// Generate implements report.Generator.
func (g *LLMGenerator) Generate(ctx context.Context, articles []models.Article, promptTemplate string) (string, error) {
	if g.provider == nil {
		return "", llm.ErrUnavailable
	}
	if len(articles) == 0 {
		return "", errors.New("no articles to write about")
	}

	prompt := BuildPrompt(articles, promptTemplate)
	log.Printf("Writing digest for %d articles (%d prompt chars)", len(articles), len(prompt))
	reply, err := g.provider.Generate(ctx, prompt, g.maxTokens)
	if err != nil {
		return "", err
	}
	return stripFence(reply), nil
}

// BuildPrompt joins the template and one context block per article.
func BuildPrompt(articles []models.Article, promptTemplate string) string {
	blocks := make([]string, len(articles))
	for i, a := range articles {
		category := a.Category()
		if category == "" {
			category = "Uncategorized"
		}
		blocks[i] = fmt.Sprintf("[%d] Title: %s\nURL: %s\nCategory: %s\nContent: %s",
			i+1, a.Title, a.URL, category, truncate(a.Content, MaxContextChars))
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(promptTemplate))
	b.WriteString("\n\n")
	b.WriteString(contextIntro)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, "\n\n----------------\n\n"))
	return b.String()
}

// stripFence removes a ```markdown wrapper some models add around the body.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
