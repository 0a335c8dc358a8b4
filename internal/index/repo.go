package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

// Add embeds the chunk contents in one batch and upserts the chunks within a
// single transaction.
func (db *DB) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if db.embed == nil {
		return fmt.Errorf("%w: %w", errNoEmbedder, apperr.ErrStorage)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := db.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("index: embed %d chunks: %w: %w", len(chunks), apperr.ErrStorage, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("index: embed returned %d vectors for %d chunks: %w", len(vectors), len(chunks), apperr.ErrStorage)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source, filename, page, seq, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source    = excluded.source,
			filename  = excluded.filename,
			page      = excluded.page,
			seq       = excluded.seq,
			content   = excluded.content,
			metadata  = excluded.metadata,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("index: prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("index: marshal metadata for %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Filename(), c.Page, c.Seq, c.Content,
			string(metaJSON), encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("index: insert chunk %s: %w: %w", c.ID, apperr.ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w: %w", apperr.ErrStorage, err)
	}
	return nil
}

// Delete removes the chunks with the given ids.
func (db *DB) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("index: prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("index: delete %s: %w: %w", id, apperr.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// AllIDs returns every stored chunk id.
func (db *DB) AllIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("index: all ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// All returns every stored chunk. Metadata and content are only loaded when
// requested.
func (db *DB) All(ctx context.Context, opts GetOptions) ([]models.Chunk, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, source, page, seq, content, metadata FROM chunks ORDER BY source, page, seq`)
	if err != nil {
		return nil, fmt.Errorf("index: all: %w", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			c        models.Chunk
			content  string
			metaJSON string
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Seq, &content, &metaJSON); err != nil {
			return nil, err
		}
		if opts.Content {
			c.Content = content
		}
		if opts.Metadata {
			if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
				return nil, fmt.Errorf("index: decode metadata for %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IDsBySource returns the ids stored for exactly this source path.
func (db *DB) IDsBySource(ctx context.Context, source string) ([]string, error) {
	return db.queryStrings(ctx, `SELECT id FROM chunks WHERE source = ? ORDER BY page, seq`, source)
}

// DeleteSource removes the chunks whose source equals path exactly and
// returns how many were removed.
func (db *DB) DeleteSource(ctx context.Context, source string) (int, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("index: delete source %s: %w: %w", source, apperr.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteUnder removes every chunk whose source lies inside dir and returns
// the distinct sources removed. Matching is by whole path segments: dir
// "/a/report" never matches "/a/report.pdf".
func (db *DB) DeleteUnder(ctx context.Context, dir string) ([]string, error) {
	prefix := dirPrefix(dir)
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sources, err := queryStrings(ctx, tx,
		`SELECT DISTINCT source FROM chunks WHERE instr(source, ?) = 1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("index: sources under %s: %w", dir, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE instr(source, ?) = 1`, prefix); err != nil {
		return nil, fmt.Errorf("index: delete under %s: %w: %w", dir, apperr.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("index: commit: %w", err)
	}
	return sources, nil
}

// dirPrefix returns dir with exactly one trailing separator.
func dirPrefix(dir string) string {
	return strings.TrimRight(path.Clean(dir), "/") + "/"
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (db *DB) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	return queryStrings(ctx, db.conn, query, args...)
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var errNoEmbedder = errors.New("index: no embedder configured")
