// Package pipeline drives articles through the curation state machine:
// Collect, Score, Filter and Balance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/TobiSchelling/curator/internal/articles"
	"github.com/TobiSchelling/curator/internal/audit"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/settings"
)

// Collector fetches raw items for the configured target URLs and keywords.
type Collector interface {
	Collect(ctx context.Context, targetURLs, keywords []string) ([]models.RawItem, error)
}

// ScoringOracle rates a single article against the configured categories.
type ScoringOracle interface {
	Score(ctx context.Context, article models.Article, categories []string) (models.Assessment, error)
}

// Fallback assessment assigned when the oracle fails for an article.
const (
	FallbackScore     = 3
	FallbackCategory  = "Uncategorized"
	FallbackReasoning = "AI Analysis Failed"
)

// CollectResult holds the outcome of a Collect run.
type CollectResult struct {
	Inserted int
}

// ScoreResult holds the outcome of a Score run.
type ScoreResult struct {
	Pending   int
	Scored    int
	Fallbacks int
}

// FilterResult holds the outcome of a Filter run.
type FilterResult struct {
	Selected int
	Archived int
}

// Promotion is one ARCHIVED article rescued into SELECTED by Balance.
type Promotion struct {
	ArticleID string
	Title     string
	Category  string
	Score     int
}

// Shortfall records a category whose quota could not be met.
type Shortfall struct {
	Category string
	Quota    int
	Selected int
}

// BalanceResult holds the outcome of a Balance run.
type BalanceResult struct {
	Promotions []Promotion
	Shortfalls []Shortfall
}

// ProcessResult holds the outcome of Score, Filter and Balance run together.
type ProcessResult struct {
	Score   ScoreResult
	Filter  FilterResult
	Balance BalanceResult
}

// Engine runs pipeline stages. Triggers are serialized by an internal lock.
type Engine struct {
	articles  *articles.Repository
	settings  *settings.Service
	audit     *audit.Log
	collector Collector
	oracle    ScoringOracle

	mu sync.Mutex
}

// New creates an engine.
func New(repo *articles.Repository, cfg *settings.Service, log *audit.Log, collector Collector, oracle ScoringOracle) *Engine {
	return &Engine{
		articles:  repo,
		settings:  cfg,
		audit:     log,
		collector: collector,
		oracle:    oracle,
	}
}

// Collect asks the collector for new items and inserts them as RAW articles.
// Every call adds a new batch; duplicates are the collector's concern.
func (e *Engine) Collect(ctx context.Context) (*CollectResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.audit.Record(ctx, models.SeverityInfo, "Collection started")

	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return nil, e.fail(ctx, "Collection", fmt.Errorf("loading settings: %w", err))
	}

	log.Printf("Collecting from %d targets...", len(cfg.TargetURLs))
	items, err := e.collector.Collect(ctx, cfg.TargetURLs, cfg.Keywords)
	if err != nil {
		return nil, e.fail(ctx, "Collection", &models.CollaboratorError{Collaborator: "collector", Err: err})
	}

	batch := make([]models.Article, len(items))
	for i, item := range items {
		batch[i] = models.Article{
			Title:   item.Title,
			URL:     item.URL,
			Source:  item.Source,
			Content: item.Content,
		}
	}
	inserted, err := e.articles.InsertBatch(ctx, batch)
	if err != nil {
		return nil, e.fail(ctx, "Collection", fmt.Errorf("inserting articles: %w", err))
	}

	e.audit.Record(ctx, models.SeveritySuccess, "Collected %d new articles", len(inserted))
	return &CollectResult{Inserted: len(inserted)}, nil
}

// Score runs the Score stage on its own.
func (e *Engine) Score(ctx context.Context) (*ScoreResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.audit.Record(ctx, models.SeverityInfo, "Scoring started")
	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return nil, e.fail(ctx, "Scoring", fmt.Errorf("loading settings: %w", err))
	}

	res, err := e.score(ctx, cfg)
	if err != nil {
		return res, e.fail(ctx, "Scoring", err)
	}
	if res.Pending > 0 {
		e.audit.Record(ctx, models.SeveritySuccess, "Scored %d articles (%d fallbacks)", res.Scored, res.Fallbacks)
	}
	return res, nil
}

// Filter runs the Filter stage on its own.
func (e *Engine) Filter(ctx context.Context) (*FilterResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return nil, e.fail(ctx, "Filtering", err)
	}
	res, err := e.filter(ctx, cfg)
	if err != nil {
		return nil, e.fail(ctx, "Filtering", err)
	}
	e.audit.Record(ctx, models.SeveritySuccess, "Filtered articles: %d selected, %d archived", res.Selected, res.Archived)
	return res, nil
}

// Balance runs the Balance stage on its own. It refuses to run while any
// article is still SCORED.
func (e *Engine) Balance(ctx context.Context) (*BalanceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return nil, e.fail(ctx, "Balancing", err)
	}
	res, err := e.balance(ctx, cfg)
	if err != nil {
		return nil, e.fail(ctx, "Balancing", err)
	}
	e.audit.Record(ctx, models.SeveritySuccess, "Balancing complete: %d promoted", len(res.Promotions))
	return res, nil
}

// Process runs Score, Filter and Balance as one action. With nothing RAW and
// nothing SCORED it stops after the Score warning.
func (e *Engine) Process(ctx context.Context) (*ProcessResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.audit.Record(ctx, models.SeverityInfo, "Processing started")
	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return nil, e.fail(ctx, "Processing", err)
	}

	res := &ProcessResult{}
	scored, err := e.score(ctx, cfg)
	if scored != nil {
		res.Score = *scored
	}
	if err != nil {
		return res, e.fail(ctx, "Processing", err)
	}

	pending, err := e.articles.ListByStatus(ctx, models.ArticleScored)
	if err != nil {
		return res, e.fail(ctx, "Processing", err)
	}
	if scored.Pending == 0 && len(pending) == 0 {
		return res, nil
	}

	filtered, err := e.filter(ctx, cfg)
	if err != nil {
		return res, e.fail(ctx, "Processing", err)
	}
	res.Filter = *filtered

	balanced, err := e.balance(ctx, cfg)
	if err != nil {
		return res, e.fail(ctx, "Processing", err)
	}
	res.Balance = *balanced

	e.audit.Record(ctx, models.SeveritySuccess,
		"Processing complete: %d scored, %d selected, %d archived, %d promoted",
		res.Score.Scored, res.Filter.Selected, res.Filter.Archived, len(res.Balance.Promotions))
	return res, nil
}

// fail writes the terminal entry for a failed action and returns err.
// Cancellation is recorded as a warning.
func (e *Engine) fail(ctx context.Context, action string, err error) error {
	sev := models.SeverityError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		sev = models.SeverityWarning
	}
	e.audit.Record(ctx, sev, "%s failed: %v", action, err)
	return err
}

// score assesses every RAW article. An oracle failure degrades to the
// fallback assessment; cancellation stops the stage and leaves the
// remaining articles RAW.
func (e *Engine) score(ctx context.Context, cfg models.Settings) (*ScoreResult, error) {
	raw, err := e.articles.ListByStatus(ctx, models.ArticleRaw)
	if err != nil {
		return nil, fmt.Errorf("listing raw articles: %w", err)
	}

	res := &ScoreResult{Pending: len(raw)}
	if len(raw) == 0 {
		e.audit.Record(ctx, models.SeverityWarning, "No raw articles to score")
		return res, nil
	}

	log.Printf("Scoring %d articles...", len(raw))
	for i, a := range raw {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("scoring stopped after %d of %d articles: %w", res.Scored, len(raw), err)
		}

		assessment, err := e.oracle.Score(ctx, a, cfg.Categories)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("scoring stopped after %d of %d articles: %w", res.Scored, len(raw), ctx.Err())
			}
			log.Printf("  [%d/%d] scoring failed for %q: %v", i+1, len(raw), a.Title, err)
			e.audit.Record(ctx, models.SeverityWarning, "Scoring failed for %q, using fallback: %v", a.Title, err)
			assessment = models.Assessment{Score: FallbackScore, Category: FallbackCategory, Reasoning: FallbackReasoning}
			res.Fallbacks++
		}
		assessment = normalize(assessment)

		if err := e.articles.SetAssessment(ctx, a.ID, assessment); err != nil {
			return res, fmt.Errorf("storing assessment for %s: %w", a.ID, err)
		}
		res.Scored++
	}
	return res, nil
}

func normalize(a models.Assessment) models.Assessment {
	if a.Score < 1 {
		a.Score = 1
	}
	if a.Score > 5 {
		a.Score = 5
	}
	if a.Category == "" {
		a.Category = FallbackCategory
	}
	return a
}

// filter partitions SCORED articles by the score threshold.
func (e *Engine) filter(ctx context.Context, cfg models.Settings) (*FilterResult, error) {
	scored, err := e.articles.ListByStatus(ctx, models.ArticleScored)
	if err != nil {
		return nil, fmt.Errorf("listing scored articles: %w", err)
	}

	res := &FilterResult{}
	changes := make([]articles.Transition, 0, len(scored))
	for _, a := range scored {
		to := models.ArticleArchived
		if a.Score() >= cfg.ScoreThreshold {
			to = models.ArticleSelected
			res.Selected++
		} else {
			res.Archived++
		}
		changes = append(changes, articles.Transition{ID: a.ID, To: to})
	}
	if err := e.articles.ApplyTransitions(ctx, changes); err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}
	return res, nil
}

// balance tops up each configured category to its quota from that
// category's ARCHIVED pool, highest score first.
func (e *Engine) balance(ctx context.Context, cfg models.Settings) (*BalanceResult, error) {
	all, err := e.articles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}

	selected := make(map[string]int)
	archived := make(map[string][]models.Article)
	for _, a := range all {
		switch a.Status {
		case models.ArticleScored:
			return nil, &models.PreconditionError{Op: "balance", Err: models.ErrNotFiltered}
		case models.ArticleSelected:
			selected[a.Category()]++
		case models.ArticleArchived:
			archived[a.Category()] = append(archived[a.Category()], a)
		}
	}

	res := &BalanceResult{}
	var changes []articles.Transition
	for _, category := range cfg.Categories {
		deficit := cfg.Quota(category) - selected[category]
		if deficit <= 0 {
			continue
		}

		pool := archived[category]
		// Stable sort keeps newest-first order among equal scores.
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score() > pool[j].Score() })

		n := min(deficit, len(pool))
		for _, a := range pool[:n] {
			changes = append(changes, articles.Transition{ID: a.ID, To: models.ArticleSelected})
			res.Promotions = append(res.Promotions, Promotion{
				ArticleID: a.ID,
				Title:     a.Title,
				Category:  category,
				Score:     a.Score(),
			})
		}
		if n < deficit {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				Category: category,
				Quota:    cfg.Quota(category),
				Selected: selected[category] + n,
			})
		}
	}

	if err := e.articles.ApplyTransitions(ctx, changes); err != nil {
		return nil, fmt.Errorf("applying promotions: %w", err)
	}

	for _, p := range res.Promotions {
		e.audit.Record(ctx, models.SeveritySuccess, "Promoted %q to meet the %s quota (score %d)", p.Title, p.Category, p.Score)
	}
	for _, s := range res.Shortfalls {
		e.audit.Record(ctx, models.SeverityWarning, "Quota for %s not met: %d of %d selected", s.Category, s.Selected, s.Quota)
	}
	return res, nil
}
