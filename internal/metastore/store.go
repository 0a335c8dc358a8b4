// Package metastore keeps the per-file metadata records used for query-time
// filtering. Records live in the index database; an optional JSON mirror
// keeps the flat filename → fields file up to date for external readers.
package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/starford/dossier/internal/index"
	"github.com/starford/dossier/internal/textnorm"
)

// Allowed record keys.
const (
	KeyMarche  = "marche"
	KeyNature  = "nature du document"
	KeyRegion  = "region"
	KeySociete = "societe"
	KeyVersion = "version"
)

var allowed = []string{KeyMarche, KeyNature, KeyRegion, KeySociete, KeyVersion}

// aliases maps folded extractor labels onto allowed keys.
var aliases = map[string]string{
	"marche":             KeyMarche,
	"numero marche":      KeyMarche,
	"nature":             KeyNature,
	"nature du document": KeyNature,
	"type document":      KeyNature,
	"region":             KeyRegion,
	"ville":              KeyRegion,
	"societe":            KeySociete,
	"entreprise":         KeySociete,
	"version":            KeyVersion,
}

// Keys returns the allow-list.
func Keys() []string {
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}

// Filter keeps the allowed keys of fields. Keys are compared after case and
// accent folding, so "Région" is stored as "region". Empty values and the
// extractor's "non trouvé" placeholder are dropped.
func Filter(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		key, ok := aliases[strings.Join(strings.Fields(textnorm.Fold(k)), " ")]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || textnorm.Fold(v) == "non trouve" {
			continue
		}
		out[key] = v
	}
	return out
}

// Store wraps the metadata records with allow-list filtering and the JSON
// mirror.
type Store struct {
	records index.MetadataRecords
	mirror  *Mirror
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMirror rewrites the given JSON file after every change.
func WithMirror(m *Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// New returns a Store over records.
func New(records index.MetadataRecords, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{records: records, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put replaces the record of filename with the allowed subset of fields.
func (s *Store) Put(ctx context.Context, filename string, fields map[string]string) (map[string]string, error) {
	clean := Filter(fields)
	if err := s.records.PutFileMetadata(ctx, filename, clean); err != nil {
		return nil, fmt.Errorf("metastore: put %s: %w", filename, err)
	}
	s.changed()
	return clean, nil
}

// Get returns the record of filename. A missing record wraps
// apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, filename string) (map[string]string, error) {
	fields, err := s.records.GetFileMetadata(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("metastore: get %s: %w", filename, err)
	}
	return fields, nil
}

// Delete removes the records of filenames.
func (s *Store) Delete(ctx context.Context, filenames ...string) error {
	if len(filenames) == 0 {
		return nil
	}
	if err := s.records.DeleteFileMetadata(ctx, filenames...); err != nil {
		return fmt.Errorf("metastore: delete: %w", err)
	}
	s.changed()
	return nil
}

// All returns every record.
func (s *Store) All(ctx context.Context) (map[string]map[string]string, error) {
	return s.records.AllFileMetadata(ctx)
}

// MatchAny returns, sorted, the filenames for which at least one of values
// is a case-insensitive substring of at least one stored field value.
func (s *Store) MatchAny(ctx context.Context, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	all, err := s.records.AllFileMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("metastore: match: %w", err)
	}
	var out []string
	for name, fields := range all {
		if matches(fields, values) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func matches(fields map[string]string, values []string) bool {
	for _, v := range values {
		for _, stored := range fields {
			if textnorm.ContainsFold(stored, v) {
				return true
			}
		}
	}
	return false
}

// ExportJSON writes every record as one JSON object keyed by filename.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	all, err := s.records.AllFileMetadata(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}

// ImportJSON loads a flat filename → fields file into the store when the
// store is empty. It returns the number of records imported; a missing file
// imports nothing.
func (s *Store) ImportJSON(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("metastore: read %s: %w", path, err)
	}
	existing, err := s.records.AllFileMetadata(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	var in map[string]map[string]string
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, fmt.Errorf("metastore: decode %s: %w", path, err)
	}
	for name, fields := range in {
		if err := s.records.PutFileMetadata(ctx, name, Filter(fields)); err != nil {
			return 0, err
		}
	}
	return len(in), nil
}

func (s *Store) changed() {
	if s.mirror != nil {
		s.mirror.Notify()
	}
}
