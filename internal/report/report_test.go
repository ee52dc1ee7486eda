package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/curator/internal/articles"
	"github.com/TobiSchelling/curator/internal/audit"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/settings"
	"github.com/TobiSchelling/curator/internal/store"
)

type stubGenerator struct {
	markdown string
	err      error
	got      []models.Article
	prompt   string
}

func (g *stubGenerator) Generate(_ context.Context, articles []models.Article, prompt string) (string, error) {
	g.got = articles
	g.prompt = prompt
	return g.markdown, g.err
}

type stubPublisher struct {
	err  error
	sent []models.Report
}

func (p *stubPublisher) Publish(_ context.Context, r models.Report) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, r)
	return nil
}

type fixture struct {
	manager   *Manager
	repo      *articles.Repository
	log       *audit.Log
	generator *stubGenerator
	publisher *stubPublisher
}

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	log := audit.New(s)
	repo := articles.NewRepository(s)
	n := 0
	repo.NewID = func() string { n++; return fmt.Sprintf("art-%d", n) }
	svc := settings.New(s, log, models.Settings{
		ScoreThreshold: 4,
		Categories:     []string{"AI", "Policy", "Markets"},
		CategoryQuotas: map[string]int{},
		Schedule:       models.Schedule{Frequency: models.FrequencyWeekly, Day: "Friday", Hour: 9},
		PromptTemplate: "Write a digest",
	})

	f := &fixture{
		repo:      repo,
		log:       log,
		generator: &stubGenerator{markdown: "# Digest\n"},
		publisher: &stubPublisher{},
	}
	f.manager = NewManager(s, repo, svc, log, f.generator, f.publisher)
	f.manager.Now = func() time.Time { return fixedNow }
	f.manager.NewID = func() string { return "rep-1" }
	return f
}

// selectArticles inserts articles and walks them to SELECTED with the given categories.
func (f *fixture) selectArticles(t *testing.T, categories ...string) []models.Article {
	t.Helper()
	ctx := context.Background()
	batch := make([]models.Article, len(categories))
	for i := range categories {
		batch[i] = models.Article{Title: fmt.Sprintf("story %d", i), URL: fmt.Sprintf("https://example.com/%d", i)}
	}
	inserted, err := f.repo.InsertBatch(ctx, batch)
	require.NoError(t, err)
	for i, a := range inserted {
		require.NoError(t, f.repo.SetAssessment(ctx, a.ID, models.Assessment{Score: 5, Category: categories[i], Reasoning: "relevant"}))
		require.NoError(t, f.repo.UpdateStatus(ctx, a.ID, models.ArticleSelected))
	}
	return inserted
}

func TestGenerateWithNothingSelected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.manager.Generate(ctx)
	var pre *models.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, models.ErrNothingSelected)

	raw, _, err := store.Load(ctx, f.manager.store, store.KeyReports, []models.Report(nil))
	require.NoError(t, err)
	assert.Empty(t, raw)

	entries, _ := f.log.List(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SeverityError, entries[0].Severity)
}

func TestGenerateSnapshotsSelectedArticles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inserted := f.selectArticles(t, "Markets", "AI", "Markets")

	r, err := f.manager.Generate(ctx)
	require.NoError(t, err)

	assert.Equal(t, "rep-1", r.ID)
	assert.Equal(t, models.ReportPendingReview, r.Status)
	assert.Equal(t, "Weekly Digest 2025-03-14", r.Title)
	assert.Equal(t, "# Digest\n", r.Markdown)
	assert.Equal(t, []string{"AI", "Markets"}, r.Tags)
	assert.Equal(t, []string{inserted[0].ID, inserted[1].ID, inserted[2].ID}, r.IncludedArticleIDs)
	assert.Equal(t, "Write a digest", f.generator.prompt)
	assert.Len(t, f.generator.got, 3)

	// Later article changes do not touch the snapshot.
	extra := f.selectArticles(t, "Policy")
	require.NoError(t, f.repo.UpdateCategory(ctx, inserted[0].ID, "Policy"))

	stored, err := f.manager.Get(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, r.IncludedArticleIDs, stored.IncludedArticleIDs)
	assert.NotContains(t, stored.IncludedArticleIDs, extra[0].ID)
	assert.Equal(t, []string{"AI", "Markets"}, stored.Tags)
}

func TestGenerateFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")

	f.generator.err = errors.New("model timeout")
	_, err := f.manager.Generate(ctx)
	var collab *models.CollaboratorError
	require.ErrorAs(t, err, &collab)

	f.generator.err = nil
	f.generator.markdown = "   "
	_, err = f.manager.Generate(ctx)
	require.ErrorAs(t, err, &collab)

	_, found, err := store.Load(ctx, f.manager.store, store.KeyReports, []models.Report(nil))
	require.NoError(t, err)
	assert.False(t, found)

	entries, _ := f.log.List(ctx)
	assert.Equal(t, models.SeverityError, entries[0].Severity)
}

func TestGenerateCancelledIsWarning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")
	f.generator.err = context.Canceled

	_, err := f.manager.Generate(ctx)
	require.ErrorIs(t, err, context.Canceled)

	entries, _ := f.log.List(ctx)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.SeverityWarning, entries[0].Severity)
	assert.Contains(t, entries[0].Message, "Report generation failed")
}

func TestGenerateWithCancelledContextLogsOnce(t *testing.T) {
	f := newFixture(t)
	f.selectArticles(t, "AI")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.manager.Generate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.generator.got)

	entries, err := f.log.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SeverityWarning, entries[0].Severity)
}

func TestPublishCancelledKeepsPendingReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")
	_, err := f.manager.Generate(ctx)
	require.NoError(t, err)
	f.publisher.err = context.DeadlineExceeded

	_, err = f.manager.Publish(ctx, "rep-1", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	r, err := f.manager.Get(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportPendingReview, r.Status)

	entries, _ := f.log.List(ctx)
	assert.Equal(t, models.SeverityWarning, entries[0].Severity)
}

func TestPublishUnknownReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before, err := f.manager.List(ctx)
	require.NoError(t, err)

	_, err = f.manager.Publish(ctx, "missing", "x")
	var pre *models.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, models.ErrReportNotFound)
	assert.Empty(t, f.publisher.sent)

	after, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, _ := f.log.List(ctx)
	assert.Equal(t, models.SeverityError, entries[0].Severity)
}

func TestPublishOverwritesMarkdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")
	_, err := f.manager.Generate(ctx)
	require.NoError(t, err)

	r, err := f.manager.Publish(ctx, "rep-1", "# Edited\n")
	require.NoError(t, err)
	assert.Equal(t, models.ReportPublished, r.Status)
	assert.Equal(t, "# Edited\n", r.Markdown)

	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, "# Edited\n", f.publisher.sent[0].Markdown)

	stored, err := f.manager.Get(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportPublished, stored.Status)
	assert.Equal(t, "# Edited\n", stored.Markdown)

	// A second publish resends the new content.
	_, err = f.manager.Publish(ctx, "rep-1", "# Edited again\n")
	require.NoError(t, err)
	assert.Len(t, f.publisher.sent, 2)

	// Empty content publishes the stored body.
	_, err = f.manager.Publish(ctx, "rep-1", "")
	require.NoError(t, err)
	assert.Equal(t, "# Edited again\n", f.publisher.sent[2].Markdown)
}

func TestPublishFailureKeepsPendingReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")
	_, err := f.manager.Generate(ctx)
	require.NoError(t, err)

	f.publisher.err = errors.New("connection refused")
	_, err = f.manager.Publish(ctx, "rep-1", "# Edited\n")
	var collab *models.CollaboratorError
	require.ErrorAs(t, err, &collab)
	assert.Equal(t, "publisher", collab.Collaborator)

	stored, err := f.manager.Get(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportPendingReview, stored.Status)
	assert.Equal(t, "# Digest\n", stored.Markdown)
}

func TestListSeedsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reports, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "1", reports[0].ID)
	assert.Equal(t, models.ReportPublished, reports[1].Status)

	f.selectArticles(t, "AI")
	_, err = f.manager.Generate(ctx)
	require.NoError(t, err)

	reports, err = f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "rep-1", reports[0].ID)
}

func TestListDoesNotSeedAfterGenerate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectArticles(t, "AI")
	_, err := f.manager.Generate(ctx)
	require.NoError(t, err)

	reports, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestTitle(t *testing.T) {
	at := time.Date(2024, 11, 29, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "Weekly Digest 2024-11-29", Title(models.FrequencyWeekly, at))
	assert.Equal(t, "Daily Digest 2024-11-29", Title(models.FrequencyDaily, at))
}

func TestTagsPutsUnconfiguredLast(t *testing.T) {
	mk := func(c string) models.Article {
		return models.Article{Status: models.ArticleSelected, Assessment: &models.Assessment{Score: 4, Category: c}}
	}
	got := Tags([]models.Article{mk("Uncategorized"), mk("Policy"), mk("AI"), mk("Policy")}, []string{"AI", "Policy"})
	assert.Equal(t, []string{"AI", "Policy", "Uncategorized"}, got)
}
