// Package audit keeps the bounded, newest-first operational history.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/store"
)

// MaxEntries bounds the log; older entries are dropped on append.
const MaxEntries = 100

// Log is the append-only audit trail stored under store.KeyLogs.
type Log struct {
	store store.Store
	mu    sync.Mutex

	Now   func() time.Time
	NewID func() string
}

// New creates an audit log backed by s.
func New(s store.Store) *Log {
	return &Log{store: s, Now: time.Now, NewID: uuid.NewString}
}

// Append prepends a new entry and truncates the log to MaxEntries.
func (l *Log) Append(ctx context.Context, message string, severity models.Severity) error {
	if !severity.Valid() {
		return fmt.Errorf("unknown severity %q", severity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, _, err := store.Load(ctx, l.store, store.KeyLogs, []models.LogEntry(nil))
	if err != nil {
		return err
	}

	entry := models.LogEntry{
		ID:        l.NewID(),
		Timestamp: l.Now().UTC(),
		Message:   message,
		Severity:  severity,
	}
	entries = append([]models.LogEntry{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return store.Save(ctx, l.store, store.KeyLogs, entries)
}

// Record formats and appends an entry. It ignores cancellation of ctx, so a
// cancelled action still leaves its entries. A failed append is written to
// the process log instead of being returned.
func (l *Log) Record(ctx context.Context, severity models.Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := l.Append(context.WithoutCancel(ctx), msg, severity); err != nil {
		log.Printf("audit append failed (%s: %s): %v", severity, msg, err)
	}
}

// List returns all retained entries, newest first.
func (l *Log) List(ctx context.Context) ([]models.LogEntry, error) {
	entries, _, err := store.Load(ctx, l.store, store.KeyLogs, []models.LogEntry{})
	return entries, err
}
