// Package app assembles the curation components around one store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/TobiSchelling/curator/internal/articles"
	"github.com/TobiSchelling/curator/internal/audit"
	"github.com/TobiSchelling/curator/internal/collect"
	"github.com/TobiSchelling/curator/internal/compose"
	"github.com/TobiSchelling/curator/internal/config"
	"github.com/TobiSchelling/curator/internal/database"
	"github.com/TobiSchelling/curator/internal/fetch"
	"github.com/TobiSchelling/curator/internal/llm"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/pipeline"
	"github.com/TobiSchelling/curator/internal/publish"
	"github.com/TobiSchelling/curator/internal/report"
	"github.com/TobiSchelling/curator/internal/scoring"
	"github.com/TobiSchelling/curator/internal/settings"
	"github.com/TobiSchelling/curator/internal/store"
)

// Collaborators are the external services the core calls out to.
type Collaborators struct {
	Collector pipeline.Collector
	Oracle    pipeline.ScoringOracle
	Generator report.Generator
	Publisher report.Publisher
}

// App holds the wired components.
type App struct {
	Store    store.Store
	Audit    *audit.Log
	Articles *articles.Repository
	Settings *settings.Service
	Engine   *pipeline.Engine
	Reports  *report.Manager

	closer io.Closer
}

// New wires the components over s.
func New(s store.Store, defaults models.Settings, c Collaborators) *App {
	trail := audit.New(s)
	repo := articles.NewRepository(s)
	cfg := settings.New(s, trail, defaults)
	return &App{
		Store:    s,
		Audit:    trail,
		Articles: repo,
		Settings: cfg,
		Engine:   pipeline.New(repo, cfg, trail, c.Collector, c.Oracle),
		Reports:  report.NewManager(s, repo, cfg, trail, c.Generator, c.Publisher),
	}
}

// FromConfig opens the configured store and builds the real collaborators.
func FromConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		s      store.Store
		closer io.Closer
	)
	switch cfg.Storage.Driver {
	case "memory":
		s = store.NewMemoryStore()
	default:
		path := cfg.DatabasePath()
		if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		db, err := database.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s, closer = db, db
	}

	provider, err := llm.Select(ctx, llm.Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaURL:     cfg.LLM.OllamaURL,
		OpenAIModel:   cfg.LLM.OpenAIModel,
		OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
		APIKeyEnv:     cfg.LLM.APIKeyEnv,
	})
	if err != nil {
		log.Printf("%v; scoring will use fallback assessments", err)
	}

	var fetcher *fetch.Fetcher
	if cfg.Collector.FetchContent {
		fetcher = fetch.New(time.Duration(cfg.Collector.TimeoutSeconds) * time.Second)
	}
	collector := collect.New(fetcher, cfg.Collector.DaysBack)
	if cfg.Collector.MaxPerFeed > 0 {
		collector.MaxPerFeed = cfg.Collector.MaxPerFeed
	}

	c := Collaborators{
		Collector: collector,
		Oracle:    scoring.NewOracle(provider, cfg.LLM.MaxTokens),
	}

	a := New(s, cfg.Curation, c)
	a.closer = closer

	switch {
	case cfg.Report.Generator == "template":
		a.Reports = a.withGenerator(compose.NewTemplateGenerator(a.Settings), cfg)
	case provider == nil:
		log.Println("No LLM provider for report writing, using the template generator")
		a.Reports = a.withGenerator(compose.NewTemplateGenerator(a.Settings), cfg)
	default:
		a.Reports = a.withGenerator(compose.NewLLMGenerator(provider, cfg.LLM.ReportMaxTokens), cfg)
	}
	return a, nil
}

func (a *App) withGenerator(gen report.Generator, cfg *config.Config) *report.Manager {
	var pub report.Publisher
	if cfg.Publisher.Kind == "webhook" {
		pub = publish.NewWebhookPublisher(cfg.Publisher.WebhookURL, os.Getenv(cfg.Publisher.TokenEnv), 0)
	} else {
		pub = publish.NewFilePublisher(cfg.PublishDir())
	}
	return report.NewManager(a.Store, a.Articles, a.Settings, a.Audit, gen, pub)
}

// Close releases the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Status summarizes the current state.
type Status struct {
	Articles  map[string]int   `json:"articles"`
	Reports   map[string]int   `json:"reports"`
	LatestLog *models.LogEntry `json:"latestLog,omitempty"`
}

// Status returns article and report counts per status and the newest log entry.
func (a *App) Status(ctx context.Context) (*Status, error) {
	counts, err := a.Articles.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := a.Reports.List(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := a.Audit.List(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{Articles: make(map[string]int), Reports: make(map[string]int)}
	for _, s := range models.ArticleStatuses {
		st.Articles[s.String()] = counts[s]
	}
	for _, s := range models.ReportStatuses {
		st.Reports[s.String()] = 0
	}
	for _, r := range reports {
		st.Reports[r.Status.String()]++
	}
	if len(entries) > 0 {
		st.LatestLog = &entries[0]
	}
	return st, nil
}

// StorageRecords lists the persisted records with their sizes and revisions.
// ok is false when the store is not the SQLite database.
func (a *App) StorageRecords(ctx context.Context) (records []database.RecordInfo, ok bool, err error) {
	db, ok := a.Store.(*database.DB)
	if !ok {
		return nil, false, nil
	}
	records, err = db.Records(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("listing records: %w", err)
	}
	return records, true, nil
}

// RunScheduled is the automated trigger: Collect, Process, then Generate.
// Having nothing selected ends the run without an error.
func (a *App) RunScheduled(ctx context.Context) error {
	if _, err := a.Engine.Collect(ctx); err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if _, err := a.Engine.Process(ctx); err != nil {
		return fmt.Errorf("process: %w", err)
	}
	if _, err := a.Reports.Generate(ctx); err != nil {
		if errors.Is(err, models.ErrNothingSelected) {
			return nil
		}
		return fmt.Errorf("generate: %w", err)
	}
	return nil
}
