// Package storage guards file access under the document root.
package storage

import (
	"io"
	"io/fs"

	"github.com/starford/dossier/internal/models"
)

// Provider is the document root seen by the services. Paths are
// slash-separated and relative to the root.
type Provider interface {
	Root() string
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
	Stat(path string) (fs.FileInfo, error)
	// List returns every supported document under dir.
	List(dir string) ([]models.DocumentInfo, error)
	Write(path string, content []byte) error
	// WriteFrom streams at most limit bytes from r into path atomically and
	// returns the size written.
	WriteFrom(path string, r io.Reader, limit int64) (int64, error)
	Delete(path string) error
	Move(from, to string) error
}
