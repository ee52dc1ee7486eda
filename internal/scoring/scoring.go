// Package scoring rates articles for relevance with an LLM.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/curator/internal/llm"
	"github.com/TobiSchelling/curator/internal/models"
)

const scoringPrompt = `Analyze the following article for an AI industry digest.

1. Assign a relevance score from 1 to 5 (5 = highly relevant and high quality, 1 = spam or irrelevant).
2. Categorize it into exactly one of these categories: %s. If none fit, use "Other".
3. Give a one-sentence reasoning.

Article Title: %s
Source: %s
Article Content:
%s

Respond with ONLY this JSON:
{"score": 1-5, "category": "<category>", "reasoning": "<one sentence>"}`

// MaxContentChars bounds the article text sent to the model.
const MaxContentChars = 1000

// OtherCategory is assigned when the model answers outside the configured list.
const OtherCategory = "Other"

// Oracle scores articles through an llm.Provider.
type Oracle struct {
	provider  llm.Provider
	maxTokens int
}

// NewOracle creates an oracle. A nil provider makes every call fail, which
// the pipeline turns into its fallback assessment.
func NewOracle(provider llm.Provider, maxTokens int) *Oracle {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Oracle{provider: provider, maxTokens: maxTokens}
}

type verdict struct {
	Score     float64 `json:"score"`
	Category  string  `json:"category"`
	Reasoning string  `json:"reasoning"`
}

// Score asks the model for a score, category and reasoning.
func (o *Oracle) Score(ctx context.Context, article models.Article, categories []string) (models.Assessment, error) {
	if o.provider == nil {
		return models.Assessment{}, llm.ErrUnavailable
	}

	content := article.Content
	if strings.TrimSpace(content) == "" {
		content = article.Title
	}
	if r := []rune(content); len(r) > MaxContentChars {
		content = string(r[:MaxContentChars]) + "... (truncated)"
	}
	source := article.Source
	if source == "" {
		source = "Unknown"
	}

	prompt := fmt.Sprintf(scoringPrompt, strings.Join(categories, ", "), article.Title, source, content)
	reply, err := o.provider.Generate(ctx, prompt, o.maxTokens)
	if err != nil {
		return models.Assessment{}, err
	}

	var v verdict
	if err := llm.DecodeJSON(reply, &v); err != nil {
		return models.Assessment{}, fmt.Errorf("parsing scoring reply: %w", err)
	}
	if v.Score == 0 {
		return models.Assessment{}, errors.New("scoring reply has no score")
	}

	return models.Assessment{
		Score:     clamp(int(v.Score+0.5), 1, 5),
		Category:  matchCategory(v.Category, categories),
		Reasoning: strings.TrimSpace(v.Reasoning),
	}, nil
}

// matchCategory maps the model's answer onto a configured name, ignoring case.
func matchCategory(answer string, categories []string) string {
	answer = strings.TrimSpace(answer)
	for _, c := range categories {
		if strings.EqualFold(c, answer) {
			return c
		}
	}
	return OtherCategory
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
