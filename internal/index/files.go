package index

import (
	"context"
	"fmt"
)

// PutFile records that path was indexed at checksum.
func (db *DB) PutFile(ctx context.Context, path, checksum string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO files (path, checksum, indexed_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			indexed_at = excluded.indexed_at
	`, path, checksum)
	if err != nil {
		return fmt.Errorf("index: put file %s: %w", path, err)
	}
	return nil
}

// DeleteFiles forgets the given paths.
func (db *DB) DeleteFiles(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
			return fmt.Errorf("index: delete file %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// FileChecksums returns the recorded checksum of every indexed path.
func (db *DB) FileChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: file checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
