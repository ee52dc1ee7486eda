// Package report manages the digest lifecycle: generation from the SELECTED
// articles, review, and publishing.
package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/curator/internal/articles"
	"github.com/TobiSchelling/curator/internal/audit"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/settings"
	"github.com/TobiSchelling/curator/internal/store"
)

// Generator turns the selected articles into a markdown digest.
type Generator interface {
	Generate(ctx context.Context, articles []models.Article, promptTemplate string) (string, error)
}

// Publisher sends a report to its destination. report.Markdown holds the
// final body to publish.
type Publisher interface {
	Publish(ctx context.Context, report models.Report) error
}

// Manager owns the report collection stored under store.KeyReports.
type Manager struct {
	store     store.Store
	articles  *articles.Repository
	settings  *settings.Service
	audit     *audit.Log
	generator Generator
	publisher Publisher

	mu sync.Mutex

	Now   func() time.Time
	NewID func() string
}

// NewManager creates a report manager.
func NewManager(s store.Store, repo *articles.Repository, cfg *settings.Service, log *audit.Log, gen Generator, pub Publisher) *Manager {
	return &Manager{
		store:     s,
		articles:  repo,
		settings:  cfg,
		audit:     log,
		generator: gen,
		publisher: pub,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// Generate builds a PENDING_REVIEW report from the current SELECTED articles.
// The report keeps a snapshot of their ids.
func (m *Manager) Generate(ctx context.Context) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	selected, err := m.articles.ListByStatus(ctx, models.ArticleSelected)
	if err != nil {
		return nil, m.fail(ctx, "Report generation", fmt.Errorf("listing selected articles: %w", err))
	}
	if len(selected) == 0 {
		m.audit.Record(ctx, models.SeverityError, "Cannot generate report: no selected articles")
		return nil, &models.PreconditionError{Op: "generate report", Err: models.ErrNothingSelected}
	}

	cfg, err := m.settings.Get(ctx)
	if err != nil {
		return nil, m.fail(ctx, "Report generation", fmt.Errorf("loading settings: %w", err))
	}

	m.audit.Record(ctx, models.SeverityInfo, "Generating report from %d articles", len(selected))
	log.Printf("Generating report from %d selected articles...", len(selected))

	markdown, err := m.generator.Generate(ctx, selected, cfg.PromptTemplate)
	if err == nil && strings.TrimSpace(markdown) == "" {
		err = errors.New("generator returned an empty report")
	}
	if err != nil {
		return nil, m.fail(ctx, "Report generation", &models.CollaboratorError{Collaborator: "report generator", Err: err})
	}

	now := m.Now().UTC()
	ids := make([]string, len(selected))
	for i, a := range selected {
		ids[i] = a.ID
	}
	r := models.Report{
		ID:                 m.NewID(),
		GeneratedAt:        now,
		Title:              Title(cfg.Schedule.Frequency, now),
		Markdown:           markdown,
		Status:             models.ReportPendingReview,
		IncludedArticleIDs: ids,
		Tags:               Tags(selected, cfg.Categories),
	}

	reports, _, err := store.Load(ctx, m.store, store.KeyReports, []models.Report{})
	if err != nil {
		return nil, m.fail(ctx, "Report generation", err)
	}
	reports = append([]models.Report{r}, reports...)
	if err := store.Save(ctx, m.store, store.KeyReports, reports); err != nil {
		return nil, m.fail(ctx, "Report generation", err)
	}

	m.audit.Record(ctx, models.SeveritySuccess, "Report %q generated with %d articles, awaiting review", r.Title, len(ids))
	return &r, nil
}

// Publish sends finalMarkdown through the publisher and marks the report
// PUBLISHED with that body. An empty finalMarkdown publishes the stored body.
// Publishing an already PUBLISHED report sends it again.
func (m *Manager) Publish(ctx context.Context, id, finalMarkdown string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports, _, err := store.Load(ctx, m.store, store.KeyReports, []models.Report{})
	if err != nil {
		return nil, m.fail(ctx, "Publishing report "+id, err)
	}
	idx := -1
	for i := range reports {
		if reports[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.audit.Record(ctx, models.SeverityError, "Cannot publish report %s: not found", id)
		return nil, &models.PreconditionError{Op: "publish report " + id, Err: models.ErrReportNotFound}
	}

	r := reports[idx]
	if len(r.IncludedArticleIDs) == 0 {
		m.audit.Record(ctx, models.SeverityError, "Cannot publish report %q: it includes no articles", r.Title)
		return nil, &models.PreconditionError{Op: "publish report " + id, Err: models.ErrEmptyReport}
	}
	if finalMarkdown != "" {
		r.Markdown = finalMarkdown
	}

	m.audit.Record(ctx, models.SeverityInfo, "Publishing report %q", r.Title)
	if err := m.publisher.Publish(ctx, r); err != nil {
		return nil, m.fail(ctx, fmt.Sprintf("Publishing report %q", r.Title), &models.CollaboratorError{Collaborator: "publisher", Err: err})
	}

	r.Status = models.ReportPublished
	reports[idx] = r
	if err := store.Save(context.WithoutCancel(ctx), m.store, store.KeyReports, reports); err != nil {
		return nil, m.fail(ctx, fmt.Sprintf("Saving published report %q", r.Title), err)
	}

	m.audit.Record(ctx, models.SeveritySuccess, "Report %q published", r.Title)
	return &r, nil
}

// fail writes the terminal entry for a failed action and returns err.
// Cancellation is recorded as a warning.
func (m *Manager) fail(ctx context.Context, action string, err error) error {
	sev := models.SeverityError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		sev = models.SeverityWarning
	}
	m.audit.Record(ctx, sev, "%s failed: %v", action, err)
	return err
}

// List returns every report, newest first. The first call against a store
// that has never held reports seeds two example digests.
func (m *Manager) List(ctx context.Context) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports, found, err := store.Load(ctx, m.store, store.KeyReports, []models.Report{})
	if err != nil {
		return nil, err
	}
	if found {
		return reports, nil
	}

	seed := SeedReports()
	if err := store.Save(ctx, m.store, store.KeyReports, seed); err != nil {
		return nil, fmt.Errorf("seeding reports: %w", err)
	}
	return seed, nil
}

// Get returns one report.
func (m *Manager) Get(ctx context.Context, id string) (*models.Report, error) {
	reports, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].ID == id {
			return &reports[i], nil
		}
	}
	return nil, fmt.Errorf("report %s: %w", id, models.ErrReportNotFound)
}

// Title names a digest after the schedule frequency and generation date.
func Title(frequency string, at time.Time) string {
	prefix := "Weekly Digest"
	if frequency == models.FrequencyDaily {
		prefix = "Daily Digest"
	}
	return prefix + " " + at.Format("2006-01-02")
}

// Tags returns the distinct categories of the included articles in configured
// category order. Categories outside the configuration follow in the order
// they first appear.
func Tags(included []models.Article, categories []string) []string {
	present := make(map[string]bool)
	var extra []string
	for _, a := range included {
		c := a.Category()
		if c == "" || present[c] {
			continue
		}
		present[c] = true
		extra = append(extra, c)
	}

	tags := make([]string, 0, len(present))
	configured := make(map[string]bool, len(categories))
	for _, c := range categories {
		configured[c] = true
		if present[c] {
			tags = append(tags, c)
		}
	}
	for _, c := range extra {
		if !configured[c] {
			tags = append(tags, c)
		}
	}
	return tags
}

// SeedReports returns the example digests shown on a fresh install.
func SeedReports() []models.Report {
	return []models.Report{
		{
			ID:                 "1",
			GeneratedAt:        time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC),
			Title:              "AI Weekly #41",
			Markdown:           "# AI Weekly #41\n",
			Status:             models.ReportPublished,
			IncludedArticleIDs: []string{"1", "2"},
			Tags:               []string{"AI Technology", "Policy & Regulation"},
		},
		{
			ID:                 "2",
			GeneratedAt:        time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC),
			Title:              "AI Weekly #40",
			Markdown:           "# AI Weekly #40\n",
			Status:             models.ReportPublished,
			IncludedArticleIDs: []string{"3", "4"},
			Tags:               []string{"Market Trends"},
		},
	}
}
