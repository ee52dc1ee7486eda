// Package store defines the keyed record store every component persists through.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record keys. One record per key, no cross-key transactions.
const (
	KeyConfig   = "config"
	KeyArticles = "articles"
	KeyReports  = "reports"
	KeyLogs     = "logs"
)

// Store is a keyed blob store. Put is atomic per key and last-writer-wins;
// a failed Put leaves the previous value in place.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// Load decodes the record at key into a T, returning def when the key is
// missing. found tells the two cases apart.
func Load[T any](ctx context.Context, s Store, key string, def T) (v T, found bool, err error) {
	data, found, err := s.Get(ctx, key)
	if err != nil {
		return def, false, fmt.Errorf("loading %s: %w", key, err)
	}
	if !found {
		return def, false, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return def, true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return v, true, nil
}

// Save encodes v and writes it at key. Encoding happens before the write so
// an unencodable value never reaches the store.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Put(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
