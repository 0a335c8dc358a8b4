// Package docservice manages the document files under the watched root.
// It never touches the index directly: the watcher picks up every change it
// makes.
package docservice

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/index"
	"github.com/starford/dossier/internal/loader"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/storage"
)

// MaxUploadBytes caps a single uploaded document.
const MaxUploadBytes = 50 << 20

// DocumentItem is one entry of a document listing.
type DocumentItem struct {
	models.DocumentInfo
	Indexed bool `json:"indexed"`
}

// Stats summarises the document root.
type Stats struct {
	TotalDocuments   int    `json:"total_documents"`
	AddedThisWeek    int    `json:"added_this_week"`
	LastModifiedFile string `json:"last_modified_file"`
	UsedBytes        int64  `json:"used_bytes"`
}

// Service coordinates document storage and the index ledger.
type Service struct {
	store  storage.Provider
	ledger index.Ledger
	now    func() time.Time
}

// NewService creates a new document service.
func NewService(store storage.Provider, ledger index.Ledger) *Service {
	return &Service{store: store, ledger: ledger, now: time.Now}
}

// List returns every supported document under dir, flagged with whether the
// index holds its current version.
func (s *Service) List(ctx context.Context, dir string) ([]DocumentItem, error) {
	docs, err := s.store.List(dir)
	if err != nil {
		return nil, err
	}
	checksums, err := s.ledger.FileChecksums(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]DocumentItem, len(docs))
	for i, d := range docs {
		items[i] = DocumentItem{DocumentInfo: d, Indexed: checksums[d.Path] == d.Checksum}
	}
	return items, nil
}

// Stats walks the root and reports document counts and disk usage.
func (s *Service) Stats(_ context.Context) (Stats, error) {
	docs, err := s.store.List("")
	if err != nil {
		return Stats{}, err
	}
	weekAgo := s.now().AddDate(0, 0, -7)
	var st Stats
	var latest time.Time
	for _, d := range docs {
		st.TotalDocuments++
		st.UsedBytes += d.Size
		if d.UpdatedAt.After(weekAgo) {
			st.AddedThisWeek++
		}
		if d.UpdatedAt.After(latest) {
			latest = d.UpdatedAt
			st.LastModifiedFile = d.Path
		}
	}
	return st, nil
}

// Upload writes r to relPath under the root, replacing any existing file.
func (s *Service) Upload(_ context.Context, relPath string, r io.Reader) (models.DocumentInfo, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return models.DocumentInfo{}, err
	}
	if !loader.Supported(rel) {
		return models.DocumentInfo{}, fmt.Errorf("docservice: %s: %w: %w", rel, apperr.ErrInvalidInput, apperr.ErrUnsupportedFormat)
	}
	n, err := s.store.WriteFrom(rel, r, MaxUploadBytes)
	if err != nil {
		return models.DocumentInfo{}, err
	}
	return models.DocumentInfo{
		Path:      rel,
		Name:      path.Base(rel),
		Size:      n,
		UpdatedAt: s.now(),
	}, nil
}

// Delete removes a document or a directory. The watcher de-indexes it.
func (s *Service) Delete(_ context.Context, relPath string) error {
	rel, err := cleanRel(relPath)
	if err != nil {
		return err
	}
	return s.store.Delete(rel)
}

// Move renames a document or a directory inside the root. The watcher sees
// the rename and re-indexes under the new path.
func (s *Service) Move(_ context.Context, from, to string) error {
	src, err := cleanRel(from)
	if err != nil {
		return err
	}
	dest, err := cleanRel(to)
	if err != nil {
		return err
	}
	return s.store.Move(src, dest)
}

// Open returns the absolute path of a document for download.
func (s *Service) Open(_ context.Context, relPath string) (string, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return "", err
	}
	info, err := s.store.Stat(rel)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("docservice: %s is a directory: %w", rel, apperr.ErrNotFound)
	}
	return s.store.Abs(rel)
}

// cleanRel normalises a client-supplied relative path.
func cleanRel(p string) (string, error) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", fmt.Errorf("docservice: path is required: %w", apperr.ErrInvalidInput)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("docservice: invalid path %q: %w", p, apperr.ErrInvalidInput)
	}
	return clean, nil
}
