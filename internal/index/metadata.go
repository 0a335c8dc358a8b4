package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/dossier/internal/apperr"
)

// PutFileMetadata replaces the metadata record of filename. The upsert is a
// single statement, so concurrent writers never lose each other's files.
func (db *DB) PutFileMetadata(ctx context.Context, filename string, fields map[string]string) error {
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("index: marshal metadata: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO file_metadata (filename, fields, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(filename) DO UPDATE SET
			fields     = excluded.fields,
			updated_at = excluded.updated_at
	`, filename, string(data))
	if err != nil {
		return fmt.Errorf("index: put metadata %s: %w", filename, err)
	}
	return nil
}

// GetFileMetadata returns the record of filename or apperr.ErrNotFound.
func (db *DB) GetFileMetadata(ctx context.Context, filename string) (map[string]string, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT fields FROM file_metadata WHERE filename = ?`, filename).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get metadata %s: %w", filename, err)
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("index: decode metadata %s: %w", filename, err)
	}
	return out, nil
}

// DeleteFileMetadata removes the records of the given filenames. Missing
// records are ignored.
func (db *DB) DeleteFileMetadata(ctx context.Context, filenames ...string) error {
	if len(filenames) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range filenames {
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE filename = ?`, f); err != nil {
			return fmt.Errorf("index: delete metadata %s: %w", f, err)
		}
	}
	return tx.Commit()
}

// AllFileMetadata returns every record keyed by filename.
func (db *DB) AllFileMetadata(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT filename, fields FROM file_metadata ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("index: all metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, err
		}
		fields := map[string]string{}
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return nil, fmt.Errorf("index: decode metadata %s: %w", name, err)
		}
		out[name] = fields
	}
	return out, rows.Err()
}
