package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// schema holds one DDL step per version; version N is schema[N-1].
// Only append.
var schema = []struct {
	name string
	ddl  string
}{
	{"records table", `CREATE TABLE IF NOT EXISTS records (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    revision INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
)`},
	{"records updated_at index", `CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at)`},
}

func schemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// upgrade applies every schema step above the stored user_version.
func upgrade(ctx context.Context, conn *sql.DB) error {
	from, err := schemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	for v := from + 1; v <= len(schema); v++ {
		step := schema[v-1]
		log.Printf("Upgrading store schema to v%d (%s)", v, step.name)

		if _, err := conn.ExecContext(ctx, step.ddl); err != nil {
			return fmt.Errorf("schema v%d %s: %w", v, step.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
			return fmt.Errorf("recording schema v%d: %w", v, err)
		}
	}
	return nil
}
