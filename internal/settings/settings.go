// Package settings guards reads and writes of the curation configuration.
package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/TobiSchelling/curator/internal/audit"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/store"
)

// Service reads the configuration record and validates writes to it.
type Service struct {
	store    store.Store
	audit    *audit.Log
	defaults models.Settings
	mu       sync.Mutex
}

// New creates a settings service. defaults is returned until the first Save.
func New(s store.Store, log *audit.Log, defaults models.Settings) *Service {
	return &Service{store: s, audit: log, defaults: defaults.Clone()}
}

// Get returns the current configuration.
func (s *Service) Get(ctx context.Context) (models.Settings, error) {
	cfg, _, err := store.Load(ctx, s.store, store.KeyConfig, s.defaults.Clone())
	if err != nil {
		return models.Settings{}, err
	}
	if cfg.CategoryQuotas == nil {
		cfg.CategoryQuotas = map[string]int{}
	}
	return cfg, nil
}

// Save validates and stores cfg. On a validation failure the prior
// configuration is kept and a *models.ConfigurationError is returned.
func (s *Service) Save(ctx context.Context, cfg models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		s.audit.Record(ctx, models.SeverityError, "Configuration rejected: %v", err)
		return err
	}
	if cfg.CategoryQuotas == nil {
		cfg.CategoryQuotas = map[string]int{}
	}
	if err := store.Save(ctx, s.store, store.KeyConfig, cfg.Clone()); err != nil {
		s.audit.Record(ctx, models.SeverityError, "Configuration could not be saved: %v", err)
		return err
	}
	s.audit.Record(ctx, models.SeveritySuccess, "Configuration saved (threshold %d, %d categories)", cfg.ScoreThreshold, len(cfg.Categories))
	return nil
}

// IsConfigurationError reports whether err is a rejected configuration write.
func IsConfigurationError(err error) bool {
	var cfgErr *models.ConfigurationError
	return errors.As(err, &cfgErr)
}
