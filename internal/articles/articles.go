// Package articles is the Article repository over the keyed store.
package articles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/store"
)

// Transition is one requested status change.
type Transition struct {
	ID string
	To models.ArticleStatus
}

// Repository stores the article collection newest-first under store.KeyArticles.
// Every read goes to the store; nothing is cached here.
type Repository struct {
	store store.Store
	mu    sync.Mutex

	Now   func() time.Time
	NewID func() string
}

// NewRepository creates a repository backed by s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, Now: time.Now, NewID: uuid.NewString}
}

// ListAll returns every article, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]models.Article, error) {
	all, _, err := store.Load(ctx, r.store, store.KeyArticles, []models.Article{})
	return all, err
}

// ListByStatus returns articles in the given status, keeping newest-first order.
func (r *Repository) ListByStatus(ctx context.Context, status models.ArticleStatus) ([]models.Article, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Article
	for _, a := range all {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// CountByStatus returns the number of articles per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[models.ArticleStatus]int, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.ArticleStatus]int, len(models.ArticleStatuses))
	for _, a := range all {
		counts[a.Status]++
	}
	return counts, nil
}

// Get returns the article with the given id.
func (r *Repository) Get(ctx context.Context, id string) (models.Article, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return models.Article{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Article{}, fmt.Errorf("article %s: %w", id, models.ErrArticleNotFound)
}

// InsertBatch assigns fresh ids, resets each article to RAW and prepends the
// batch to the collection. The batch keeps its own order.
func (r *Repository) InsertBatch(ctx context.Context, batch []models.Article) ([]models.Article, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	now := r.Now().UTC()
	inserted := make([]models.Article, len(batch))
	for i, a := range batch {
		a.ID = r.NewID()
		a.Status = models.ArticleRaw
		a.Assessment = nil
		if a.CollectedAt.IsZero() {
			a.CollectedAt = now
		}
		inserted[i] = a
	}

	err := r.mutate(ctx, func(all []models.Article) ([]models.Article, error) {
		return append(append([]models.Article(nil), inserted...), all...), nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// UpdateStatus moves one article along the state machine.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to models.ArticleStatus) error {
	return r.ApplyTransitions(ctx, []Transition{{ID: id, To: to}})
}

// ApplyTransitions validates every change first and then saves them together.
// If any change is invalid nothing is written.
func (r *Repository) ApplyTransitions(ctx context.Context, changes []Transition) error {
	if len(changes) == 0 {
		return nil
	}
	return r.mutate(ctx, func(all []models.Article) ([]models.Article, error) {
		index := indexByID(all)
		for _, c := range changes {
			i, ok := index[c.ID]
			if !ok {
				return nil, fmt.Errorf("article %s: %w", c.ID, models.ErrArticleNotFound)
			}
			from := all[i].Status
			if !from.CanTransition(c.To) {
				return nil, fmt.Errorf("article %s %s -> %s: %w", c.ID, from, c.To, models.ErrInvalidTransition)
			}
			all[i].Status = c.To
		}
		return all, nil
	})
}

// SetAssessment records the oracle verdict and moves a RAW article to SCORED
// in one write.
func (r *Repository) SetAssessment(ctx context.Context, id string, a models.Assessment) error {
	return r.mutate(ctx, func(all []models.Article) ([]models.Article, error) {
		i, ok := indexByID(all)[id]
		if !ok {
			return nil, fmt.Errorf("article %s: %w", id, models.ErrArticleNotFound)
		}
		if !all[i].Status.CanTransition(models.ArticleScored) {
			return nil, fmt.Errorf("article %s %s -> %s: %w", id, all[i].Status, models.ArticleScored, models.ErrInvalidTransition)
		}
		assessment := a
		all[i].Assessment = &assessment
		all[i].Status = models.ArticleScored
		return all, nil
	})
}

// UpdateScore changes the score of an already assessed article.
func (r *Repository) UpdateScore(ctx context.Context, id string, score int) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("score %d out of range 1..5", score)
	}
	return r.updateAssessment(ctx, id, func(a *models.Assessment) { a.Score = score })
}

// UpdateCategory changes the category of an already assessed article.
func (r *Repository) UpdateCategory(ctx context.Context, id, category string) error {
	if category == "" {
		return fmt.Errorf("category must not be empty")
	}
	return r.updateAssessment(ctx, id, func(a *models.Assessment) { a.Category = category })
}

func (r *Repository) updateAssessment(ctx context.Context, id string, apply func(*models.Assessment)) error {
	return r.mutate(ctx, func(all []models.Article) ([]models.Article, error) {
		i, ok := indexByID(all)[id]
		if !ok {
			return nil, fmt.Errorf("article %s: %w", id, models.ErrArticleNotFound)
		}
		if all[i].Assessment == nil {
			return nil, fmt.Errorf("article %s is %s and has no assessment: %w", id, all[i].Status, models.ErrInvalidTransition)
		}
		updated := *all[i].Assessment
		apply(&updated)
		all[i].Assessment = &updated
		return all, nil
	})
}

// mutate runs a load-modify-save cycle under the repository lock.
func (r *Repository) mutate(ctx context.Context, fn func([]models.Article) ([]models.Article, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, _, err := store.Load(ctx, r.store, store.KeyArticles, []models.Article{})
	if err != nil {
		return err
	}
	updated, err := fn(all)
	if err != nil {
		return err
	}
	return store.Save(ctx, r.store, store.KeyArticles, updated)
}

func indexByID(all []models.Article) map[string]int {
	index := make(map[string]int, len(all))
	for i, a := range all {
		index[a.ID] = i
	}
	return index
}
