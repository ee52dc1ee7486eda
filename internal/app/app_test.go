package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/curator/internal/compose"
	"github.com/TobiSchelling/curator/internal/config"
	"github.com/TobiSchelling/curator/internal/database"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/store"
)

type feed struct{ items []models.RawItem }

func (f feed) Collect(context.Context, []string, []string) ([]models.RawItem, error) {
	return f.items, nil
}

type byTitle map[string]models.Assessment

func (b byTitle) Score(_ context.Context, a models.Article, _ []string) (models.Assessment, error) {
	return b[a.Title], nil
}

type sink struct{ sent []models.Report }

func (s *sink) Publish(_ context.Context, r models.Report) error {
	s.sent = append(s.sent, r)
	return nil
}

func testApp(t *testing.T, items []models.RawItem, verdicts byTitle) *App {
	t.Helper()
	defaults := config.Default().Curation
	return New(store.NewMemoryStore(), defaults, Collaborators{
		Collector: feed{items: items},
		Oracle:    verdicts,
		Generator: compose.NewTemplateGenerator(nil),
		Publisher: &sink{},
	})
}

func TestRunScheduledEndToEnd(t *testing.T) {
	ctx := context.Background()
	a := testApp(t,
		[]models.RawItem{{Title: "Model launch", URL: "https://x/1"}, {Title: "New rules", URL: "https://x/2"}},
		byTitle{
			"Model launch": {Score: 5, Category: "AI Technology", Reasoning: "big"},
			"New rules":    {Score: 2, Category: "Policy & Regulation", Reasoning: "minor"},
		})

	require.NoError(t, a.RunScheduled(ctx))

	reports, err := a.Reports.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.ReportPendingReview, reports[0].Status)
	// "New rules" was rescued by the Policy quota of 1.
	assert.Len(t, reports[0].IncludedArticleIDs, 2)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Articles["SELECTED"])
	assert.Equal(t, 1, st.Reports["PENDING_REVIEW"])
	require.NotNil(t, st.LatestLog)
	assert.Equal(t, models.SeveritySuccess, st.LatestLog.Severity)
}

func TestRunScheduledNothingSelected(t *testing.T) {
	a := testApp(t, nil, byTitle{})
	require.NoError(t, a.RunScheduled(context.Background()))
}

func TestStatusOnFreshStoreSeedsReports(t *testing.T) {
	a := testApp(t, nil, byTitle{})
	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Reports["PUBLISHED"])
	assert.Equal(t, 0, st.Articles["RAW"])
	assert.Nil(t, st.LatestLog)
}

func TestStorageRecords(t *testing.T) {
	ctx := context.Background()

	mem := testApp(t, nil, byTitle{})
	_, ok, err := mem.StorageRecords(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	db, err := database.Open(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := New(db, config.Default().Curation, Collaborators{
		Collector: feed{},
		Oracle:    byTitle{},
		Generator: compose.NewTemplateGenerator(nil),
		Publisher: &sink{},
	})
	_, err = a.Reports.List(ctx)
	require.NoError(t, err)

	records, ok, err := a.StorageRecords(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "reports", records[0].Name)
	assert.Positive(t, records[0].Bytes)
}
