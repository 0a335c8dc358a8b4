// Package loader turns document files into ordered pages of plain text.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

// Func loads the file at path into pages. Page numbers start at 0.
type Func func(path string) ([]models.Page, error)

var registry = map[string]Func{
	".pdf":  loadPDF,
	".docx": loadDOCX,
	".xls":  loadXLS,
	".xlsx": loadXLSX,
	".pptx": loadPPTX,
}

// Extensions returns the recognised extensions, dot included.
func Extensions() []string {
	out := make([]string, 0, len(registry))
	for ext := range registry {
		out = append(out, ext)
	}
	return out
}

// Supported reports whether path has a recognised extension.
func Supported(path string) bool {
	_, ok := registry[ext(path)]
	return ok
}

// HasMetadata reports whether the format carries extractable metadata.
func HasMetadata(path string) bool {
	return ext(path) == ".pdf"
}

// Load dispatches on the file extension. Unknown extensions return an error
// wrapping apperr.ErrUnsupportedFormat.
func Load(path string) ([]models.Page, error) {
	fn, ok := registry[ext(path)]
	if !ok {
		return nil, fmt.Errorf("loader: %s: %w", filepath.Ext(path), apperr.ErrUnsupportedFormat)
	}
	pages, err := fn(path)
	if err != nil {
		return nil, fmt.Errorf("loader: load %s: %w", path, err)
	}
	return pages, nil
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
