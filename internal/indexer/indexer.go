// Package indexer keeps the vector index and the metadata records in step
// with the document tree.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/checksum"
	"github.com/starford/dossier/internal/chunk"
	"github.com/starford/dossier/internal/index"
	"github.com/starford/dossier/internal/loader"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/storage"
)

// Event kinds passed to the Callback.
const (
	KindIndexed = "indexed"
	KindRemoved = "removed"
)

// Callback is called after a successful index mutation. path is relative to
// the document root.
type Callback func(kind string, path string)

// Extractor derives the metadata record of a document from its pages.
type Extractor interface {
	Extract(ctx context.Context, pages []models.Page) (map[string]string, error)
}

// Metadata is the slice of the metadata store the indexer writes to.
type Metadata interface {
	Put(ctx context.Context, filename string, fields map[string]string) (map[string]string, error)
	Delete(ctx context.Context, filenames ...string) error
}

// Result summarises one IndexFile run.
type Result struct {
	Source string
	Chunks int
	Added  int
	Purged int
}

// SyncStats summarises one Sync pass.
type SyncStats struct {
	Indexed int
	Removed int
	Skipped int
	Failed  int
}

// Indexer applies change events to the index. Sources are stored as paths
// relative to the document root, slash separated.
type Indexer struct {
	vectors    index.VectorIndex
	ledger     index.Ledger
	meta       Metadata
	store      storage.Provider
	splitter   *chunk.Splitter
	extractor  Extractor
	load       loader.Func
	purgeStale bool
	logger     *slog.Logger
	cb         Callback
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithExtractor sets the document metadata extractor.
func WithExtractor(e Extractor) Option {
	return func(ix *Indexer) { ix.extractor = e }
}

// WithSplitter replaces the default splitter.
func WithSplitter(s *chunk.Splitter) Option {
	return func(ix *Indexer) { ix.splitter = s }
}

// WithLoader replaces loader.Load.
func WithLoader(fn loader.Func) Option {
	return func(ix *Indexer) { ix.load = fn }
}

// WithPurgeStale controls whether ids a file no longer derives are removed
// after a modification.
func WithPurgeStale(on bool) Option {
	return func(ix *Indexer) { ix.purgeStale = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithCallback registers the post-mutation hook.
func WithCallback(cb Callback) Option {
	return func(ix *Indexer) { ix.cb = cb }
}

// New creates an Indexer.
func New(vectors index.VectorIndex, ledger index.Ledger, meta Metadata, store storage.Provider, opts ...Option) *Indexer {
	ix := &Indexer{
		vectors:    vectors,
		ledger:     ledger,
		meta:       meta,
		store:      store,
		splitter:   chunk.NewSplitter(),
		load:       loader.Load,
		purgeStale: true,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Handle applies one change event. Paths in ev may be absolute (as reported
// by the watcher) or relative to the document root.
func (ix *Indexer) Handle(ctx context.Context, ev models.ChangeEvent) error {
	rel, err := ix.rel(ev.Path)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case models.EventCreated, models.EventModified:
		_, err := ix.IndexFile(ctx, rel)
		return err

	case models.EventDeleted:
		return ix.remove(ctx, rel, ev.IsDir)

	case models.EventMoved:
		if err := ix.remove(ctx, rel, ev.IsDir); err != nil {
			ix.logger.Warn("indexer: move delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		if ev.DestPath == "" {
			return nil
		}
		dest, err := ix.rel(ev.DestPath)
		if err != nil {
			return err
		}
		if ev.IsDir {
			return ix.IndexDir(ctx, dest)
		}
		_, err = ix.IndexFile(ctx, dest)
		return err
	}
	return fmt.Errorf("indexer: event kind %q: %w", ev.Kind, apperr.ErrInvalidInput)
}

// IndexFile loads, splits and indexes one document. Chunks already present
// in the index are left untouched.
func (ix *Indexer) IndexFile(ctx context.Context, rel string) (Result, error) {
	res := Result{Source: rel}
	abs, err := ix.store.Abs(rel)
	if err != nil {
		return res, err
	}

	pages, err := ix.load(abs)
	if err != nil {
		if errors.Is(err, apperr.ErrUnsupportedFormat) {
			ix.logger.Debug("indexer: unsupported format", slog.String("path", rel))
		}
		return res, err
	}
	for i := range pages {
		pages[i].Source = rel
	}

	chunks := chunk.AssignIDs(ix.splitter.SplitPages(pages))
	res.Chunks = len(chunks)

	existing, err := ix.vectors.AllIDs(ctx)
	if err != nil {
		return res, err
	}
	fresh := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := existing[c.ID]; !ok {
			fresh = append(fresh, c)
		}
	}

	if ix.extractor != nil && loader.HasMetadata(rel) {
		fields := ix.extract(ctx, rel, pages)
		for i := range fresh {
			fresh[i].Metadata = maps.Clone(fields)
		}
	}

	if err := ix.vectors.Add(ctx, fresh); err != nil {
		ix.logger.Error("indexer: add failed", slog.String("path", rel), slog.String("error", err.Error()))
		return res, err
	}
	res.Added = len(fresh)

	if ix.purgeStale {
		n, err := ix.purge(ctx, rel, chunks)
		if err != nil {
			ix.logger.Warn("indexer: purge failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		res.Purged = n
	}

	if sum, err := checksum.File(abs); err == nil {
		if err := ix.ledger.PutFile(ctx, rel, sum); err != nil {
			ix.logger.Warn("indexer: ledger update failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}

	ix.logger.Debug("indexer: indexed",
		slog.String("path", rel),
		slog.Int("chunks", res.Chunks),
		slog.Int("added", res.Added),
		slog.Int("purged", res.Purged))
	ix.notify(KindIndexed, rel)
	return res, nil
}

// extract runs the document extractor and overwrites the file's metadata
// record. Failures degrade to an empty record.
func (ix *Indexer) extract(ctx context.Context, rel string, pages []models.Page) map[string]string {
	fields, err := ix.extractor.Extract(ctx, pages)
	if err != nil {
		ix.logger.Warn("indexer: metadata extraction failed", slog.String("path", rel), slog.String("error", err.Error()))
		fields = map[string]string{}
	}
	stored, err := ix.meta.Put(ctx, path.Base(rel), fields)
	if err != nil {
		ix.logger.Warn("indexer: metadata write failed", slog.String("path", rel), slog.String("error", err.Error()))
		return fields
	}
	return stored
}

func (ix *Indexer) purge(ctx context.Context, rel string, chunks []models.Chunk) (int, error) {
	stored, err := ix.vectors.IDsBySource(ctx, rel)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = struct{}{}
	}
	var stale []string
	for _, id := range stored {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return len(stale), ix.vectors.Delete(ctx, stale)
}

// IndexDir indexes every supported document under dir.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) error {
	docs, err := ix.store.List(dir)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := ix.IndexFile(ctx, d.Path); err != nil {
			ix.logger.Warn("indexer: index failed", slog.String("path", d.Path), slog.String("error", err.Error()))
		}
	}
	return nil
}

// DeleteFile removes the entries of exactly this source and its metadata
// record.
func (ix *Indexer) DeleteFile(ctx context.Context, rel string) error {
	n, err := ix.vectors.DeleteSource(ctx, rel)
	if err != nil {
		return err
	}
	if err := ix.meta.Delete(ctx, path.Base(rel)); err != nil {
		ix.logger.Warn("indexer: metadata delete failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	if err := ix.ledger.DeleteFiles(ctx, rel); err != nil {
		ix.logger.Warn("indexer: ledger delete failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	ix.logger.Debug("indexer: removed", slog.String("path", rel), slog.Int("chunks", n))
	ix.notify(KindRemoved, rel)
	return nil
}

// DeleteDir removes every entry whose source lies under dir, along with the
// metadata records of the removed sources.
func (ix *Indexer) DeleteDir(ctx context.Context, dir string) error {
	sources, err := ix.vectors.DeleteUnder(ctx, dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, path.Base(s))
	}
	if len(names) > 0 {
		if err := ix.meta.Delete(ctx, names...); err != nil {
			ix.logger.Warn("indexer: metadata delete failed", slog.String("path", dir), slog.String("error", err.Error()))
		}
	}

	if ledger, err := ix.ledger.FileChecksums(ctx); err == nil {
		prefix := strings.TrimRight(path.Clean(dir), "/") + "/"
		var gone []string
		for p := range ledger {
			if strings.HasPrefix(p, prefix) {
				gone = append(gone, p)
			}
		}
		if len(gone) > 0 {
			if err := ix.ledger.DeleteFiles(ctx, gone...); err != nil {
				ix.logger.Warn("indexer: ledger delete failed", slog.String("path", dir), slog.String("error", err.Error()))
			}
		}
	}

	ix.logger.Debug("indexer: removed dir", slog.String("path", dir), slog.Int("sources", len(sources)))
	for _, s := range sources {
		ix.notify(KindRemoved, s)
	}
	return nil
}

// remove deletes a file or a directory. A path without a document extension
// that was not seen as a directory is still swept as one, since the watcher
// cannot stat a path that is already gone.
func (ix *Indexer) remove(ctx context.Context, rel string, isDir bool) error {
	if isDir || !loader.Supported(rel) {
		return ix.DeleteDir(ctx, rel)
	}
	return ix.DeleteFile(ctx, rel)
}

// Sync walks the document root and brings the index up to date: new and
// changed files are indexed, files gone from disk are removed.
func (ix *Indexer) Sync(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	docs, err := ix.store.List("")
	if err != nil {
		return stats, err
	}
	checksums, err := ix.ledger.FileChecksums(ctx)
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		disk[d.Path] = struct{}{}
		if checksums[d.Path] == d.Checksum {
			stats.Skipped++
			continue
		}
		if _, err := ix.IndexFile(ctx, d.Path); err != nil {
			stats.Failed++
			ix.logger.Warn("sync: index failed", slog.String("path", d.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ix.DeleteFile(ctx, p); err != nil {
			ix.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
	}

	ix.logger.Info("sync: done",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// rel converts p to a slash-separated path relative to the document root.
func (ix *Indexer) rel(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("indexer: empty path: %w", apperr.ErrInvalidInput)
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	r, err := filepath.Rel(ix.store.Root(), p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("indexer: %s outside document root: %w", p, apperr.ErrInvalidInput)
	}
	return filepath.ToSlash(r), nil
}

func (ix *Indexer) notify(kind, rel string) {
	if ix.cb != nil {
		ix.cb(kind, rel)
	}
}
