package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/checksum"
	"github.com/starford/dossier/internal/loader"
	"github.com/starford/dossier/internal/models"
)

// Temporary files share this prefix. They are hidden, so List and the
// watcher both ignore them.
const tmpPattern = ".dossier-tmp-*"

// FS implements Provider on the local file system.
type FS struct {
	root string // absolute, cleaned
}

// NewFS opens the document root, creating it when missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute document root.
func (f *FS) Root() string { return f.root }

// Abs resolves rel against the root. Absolute paths and paths that climb out
// of the root are ErrInvalidInput.
func (f *FS) Abs(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute path %s: %w", rel, apperr.ErrInvalidInput)
	}
	abs := filepath.Join(f.root, cleaned)
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %s escapes the document root: %w", rel, apperr.ErrInvalidInput)
	}
	return abs, nil
}

// Stat describes the file or directory at rel.
func (f *FS) Stat(rel string) (fs.FileInfo, error) {
	abs, err := f.Abs(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, notFound(rel, err)
	}
	return info, nil
}

// List walks dir and returns every supported document below it, sorted by
// path. Hidden files and directories are skipped.
func (f *FS) List(dir string) ([]models.DocumentInfo, error) {
	base, err := f.Abs(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p != base && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !loader.Supported(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := checksum.File(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.DocumentInfo{
			Path:      filepath.ToSlash(rel),
			Name:      d.Name(),
			Size:      info.Size(),
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, notFound(dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Write atomically replaces the file at rel with content.
func (f *FS) Write(rel string, content []byte) error {
	_, err := f.WriteFrom(rel, bytes.NewReader(content), int64(len(content)))
	return err
}

// WriteFrom streams r into a temporary file next to rel, then renames it
// into place, so the watcher only ever sees the complete file. More than
// limit bytes is ErrInvalidInput and leaves nothing behind.
func (f *FS) WriteFrom(rel string, r io.Reader, limit int64) (int64, error) {
	abs, err := f.Abs(rel)
	if err != nil {
		return 0, err
	}
	if abs == f.root {
		return 0, fmt.Errorf("storage: write: empty path: %w", apperr.ErrInvalidInput)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", rel, err)
	}
	if n > limit {
		return 0, fmt.Errorf("storage: %s exceeds %d bytes: %w", rel, limit, apperr.ErrInvalidInput)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	committed = true
	return n, nil
}

// Delete removes a file or a whole directory. The root itself cannot be
// deleted.
func (f *FS) Delete(rel string) error {
	abs, err := f.Abs(rel)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to delete the document root: %w", apperr.ErrInvalidInput)
	}
	if _, err := os.Lstat(abs); err != nil {
		return notFound(rel, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", rel, err)
	}
	return nil
}

// Move renames a file or directory inside the root. It never overwrites:
// an existing destination is ErrAlreadyExists.
func (f *FS) Move(from, to string) error {
	src, err := f.Abs(from)
	if err != nil {
		return err
	}
	dest, err := f.Abs(to)
	if err != nil {
		return err
	}
	if src == f.root || dest == f.root {
		return fmt.Errorf("storage: move: the document root cannot be moved: %w", apperr.ErrInvalidInput)
	}
	if _, err := os.Lstat(src); err != nil {
		return notFound(from, err)
	}
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("storage: move to %s: %w", to, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

func notFound(rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s: %w", rel, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s: %w", rel, err)
}
