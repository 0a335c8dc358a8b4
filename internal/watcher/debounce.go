package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Debouncer drops repeated notifications for a file whose size has not
// changed within the quiet window. It is not safe for concurrent use; the
// watcher's consumer goroutine owns it.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	size   func(path string) int64
	seen   map[string]record
	swept  time.Time
}

type record struct {
	at   time.Time
	size int64
}

// NewDebouncer creates a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		now:    time.Now,
		size:   fileSize,
		seen:   make(map[string]record),
	}
}

// Allow reports whether an event for path should be processed. An event is
// suppressed when it falls inside the quiet window of the last accepted one
// and the file size is unchanged. Accepted events refresh the record.
// Records older than the window are dropped at most once per window.
func (d *Debouncer) Allow(path string) bool {
	now := d.now()
	d.sweep(now)
	size := d.size(path)
	if r, ok := d.seen[path]; ok && now.Sub(r.at) < d.window && r.size == size {
		return false
	}
	d.seen[path] = record{at: now, size: size}
	return true
}

// ForgetUnder drops the record for dir and for every path below it, so a
// re-created file is not suppressed.
func (d *Debouncer) ForgetUnder(dir string) {
	prefix := dir + string(filepath.Separator)
	for p := range d.seen {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(d.seen, p)
		}
	}
}

func (d *Debouncer) sweep(now time.Time) {
	if now.Sub(d.swept) < d.window {
		return
	}
	d.swept = now
	for p, r := range d.seen {
		if now.Sub(r.at) >= d.window {
			delete(d.seen, p)
		}
	}
}

// Len returns the number of tracked paths.
func (d *Debouncer) Len() int { return len(d.seen) }

// fileSize returns the size of path, or 0 when it cannot be read.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
