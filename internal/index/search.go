package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/dossier/internal/models"
)

// SimilaritySearch embeds query and returns the k stored chunks with the
// highest cosine similarity, best first. When filenames is non-empty only
// chunks whose source base name is in the set are considered. Ties keep
// storage order.
func (db *DB) SimilaritySearch(ctx context.Context, query string, k int, filenames []string) ([]models.Candidate, error) {
	if db.embed == nil {
		return nil, errNoEmbedder
	}
	if k <= 0 {
		return nil, nil
	}
	vecs, err := db.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: embed query returned %d vectors", len(vecs))
	}
	qv := vecs[0]

	q := `SELECT id, source, page, seq, content, metadata, embedding FROM chunks`
	args := make([]any, 0, len(filenames))
	if len(filenames) > 0 {
		q += ` WHERE filename IN (?` + strings.Repeat(`, ?`, len(filenames)-1) + `)`
		for _, f := range filenames {
			args = append(args, f)
		}
	}
	q += ` ORDER BY rowid`

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var (
			c        models.Chunk
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Seq, &c.Content, &metaJSON, &blob); err != nil {
			return nil, err
		}
		v, err := decodeVector(blob)
		if err != nil {
			slog.Warn("index: skip corrupt vector", slog.String("id", c.ID), slog.String("error", err.Error()))
			continue
		}
		if len(v) != len(qv) {
			slog.Debug("index: skip dimension mismatch", slog.String("id", c.ID), slog.Int("dims", len(v)))
			continue
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("index: decode metadata for %s: %w", c.ID, err)
		}
		out = append(out, models.Candidate{Chunk: c, Score: cosine(qv, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
