package metastore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Mirror rewrites a JSON copy of the metadata records from a single
// goroutine. Notifications coalesce: a burst of changes produces at most one
// pending rewrite.
type Mirror struct {
	path   string
	source func(ctx context.Context) ([]byte, error)
	logger *slog.Logger

	signal chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// NewMirror starts the writer goroutine for path. Call
// Attach before the first Notify, and Close on shutdown.
func NewMirror(path string, logger *slog.Logger) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		path:   path,
		logger: logger,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go m.run(ctx)
	return m
}

// Attach makes s the data source of the mirror.
func (m *Mirror) Attach(s *Store) {
	m.source = func(ctx context.Context) ([]byte, error) {
		var buf bytes.Buffer
		if err := s.ExportJSON(ctx, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// Notify schedules a rewrite.
func (m *Mirror) Notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Close flushes a pending rewrite and stops the writer.
func (m *Mirror) Close() {
	m.once.Do(func() {
		m.cancel()
		<-m.done
	})
}

func (m *Mirror) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			select {
			case <-m.signal:
				m.flush(context.Background())
			default:
			}
			return
		case <-m.signal:
			m.flush(ctx)
		}
	}
}

func (m *Mirror) flush(ctx context.Context) {
	if m.source == nil {
		return
	}
	data, err := m.source(ctx)
	if err != nil {
		m.logger.Warn("metadata mirror export failed", slog.String("path", m.path), slog.String("error", err.Error()))
		return
	}
	if err := writeAtomic(m.path, data); err != nil {
		m.logger.Warn("metadata mirror write failed", slog.String("path", m.path), slog.String("error", err.Error()))
	}
}

// writeAtomic writes data via tmp file → fsync → rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("metastore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dossier-meta-*")
	if err != nil {
		return fmt.Errorf("metastore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("metastore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("metastore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metastore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("metastore: rename: %w", err)
	}
	success = true
	return nil
}
