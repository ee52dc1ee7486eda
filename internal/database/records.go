package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RecordInfo describes one stored record without its payload.
type RecordInfo struct {
	Name      string
	Bytes     int
	Revision  int
	UpdatedAt string
}

// Get returns the raw value stored under key.
func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := sq.Select("value").From("records").Where(sq.Eq{"name": key}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building query: %w", err)
	}

	var value string
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Put upserts value under key in a single statement, so a failure leaves
// the previous value untouched.
func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	query, args, err := sq.Insert("records").
		Columns("name", "value", "updated_at").
		Values(key, string(value), time.Now().UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at, revision = records.revision + 1").
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// Records lists stored records ordered by name.
func (db *DB) Records(ctx context.Context) ([]RecordInfo, error) {
	query, args, err := sq.Select("name", "length(value)", "revision", "updated_at").
		From("records").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []RecordInfo
	for rows.Next() {
		var r RecordInfo
		if err := rows.Scan(&r.Name, &r.Bytes, &r.Revision, &r.UpdatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, r)
	}
	return infos, rows.Err()
}
