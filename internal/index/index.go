package index

import (
	"context"

	"github.com/starford/dossier/internal/models"
)

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GetOptions selects the optional columns returned by All.
type GetOptions struct {
	Metadata bool
	Content  bool
}

// VectorIndex is the chunk store consumed by the indexer and the retrieval
// pipeline. Consumers depend on it rather than on *DB so tests can fake it.
type VectorIndex interface {
	AllIDs(ctx context.Context) (map[string]struct{}, error)
	All(ctx context.Context, opts GetOptions) ([]models.Chunk, error)
	Add(ctx context.Context, chunks []models.Chunk) error
	Delete(ctx context.Context, ids []string) error
	IDsBySource(ctx context.Context, source string) ([]string, error)
	DeleteSource(ctx context.Context, source string) (int, error)
	DeleteUnder(ctx context.Context, dir string) ([]string, error)
	SimilaritySearch(ctx context.Context, query string, k int, filenames []string) ([]models.Candidate, error)
}

// MetadataRecords is the per-file metadata store.
type MetadataRecords interface {
	PutFileMetadata(ctx context.Context, filename string, fields map[string]string) error
	GetFileMetadata(ctx context.Context, filename string) (map[string]string, error)
	DeleteFileMetadata(ctx context.Context, filenames ...string) error
	AllFileMetadata(ctx context.Context) (map[string]map[string]string, error)
}

// Ledger records which files were indexed at which checksum.
type Ledger interface {
	PutFile(ctx context.Context, path, checksum string) error
	DeleteFiles(ctx context.Context, paths ...string) error
	FileChecksums(ctx context.Context) (map[string]string, error)
}

// Verify *DB satisfies the interfaces at compile time.
var (
	_ VectorIndex     = (*DB)(nil)
	_ MetadataRecords = (*DB)(nil)
	_ Ledger          = (*DB)(nil)
)
