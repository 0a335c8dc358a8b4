package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/starford/dossier/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// recorder is a Handler that records every event it receives. When gate is
// set, each call blocks until gate yields.
type recorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	active int
	peak   int
	gate   chan struct{}
}

func (r *recorder) Handle(_ context.Context, ev models.ChangeEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.active++
	if r.active > r.peak {
		r.peak = r.active
	}
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChangeEvent(nil), r.events...)
}

func (r *recorder) has(kind models.EventKind, path string) bool {
	for _, ev := range r.snapshot() {
		if ev.Kind == kind && ev.Path == path {
			return true
		}
	}
	return false
}

func (r *recorder) count(path string) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Path == path {
			n++
		}
	}
	return n
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var fastConfig = Config{QuietWindow: 5 * time.Second, SettleDelay: 20 * time.Millisecond, QueueSize: 16}

// startWatcher runs a watcher on a fresh root and stops it at cleanup.
func startWatcher(t *testing.T, h Handler) string {
	t.Helper()
	root := t.TempDir()
	w := New(root, h, WithConfig(fastConfig), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("run: %v", err)
		}
	})

	select {
	case <-w.Ready():
	case err := <-errc:
		t.Fatalf("watcher failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return root
}

func TestIgnored(t *testing.T) {
	for name, want := range map[string]bool{
		".DS_Store":      true,
		"~$contrat.docx": true,
		"~backup.pdf":    true,
		"upload.tmp":     true,
		"cps.pdf":        false,
		"rapport~.pdf":   false,
	} {
		if got := ignored(name); got != want {
			t.Errorf("ignored(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWatcherNewFile(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	p := filepath.Join(root, "cps.pdf")
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventCreated, p)
	}, "created event not delivered")
}

func TestWatcherIgnoresNoise(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	for _, name := range []string{".hidden.pdf", "~$lock.docx", "part.tmp"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	marker := filepath.Join(root, "marker.pdf")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventCreated, marker)
	}, "marker not delivered")

	for _, ev := range rec.snapshot() {
		if ev.Path != marker {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestWatcherNewDirectory(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	dir := filepath.Join(root, "lot1")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(dir, "cps.pdf")
	if err := os.WriteFile(p, []byte("nested"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventCreated, p)
	}, "file in new directory not delivered")
}

func TestWatcherDelete(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	p := filepath.Join(root, "cps.pdf")
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventCreated, p)
	}, "created event not delivered")

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventDeleted, p)
	}, "deleted event not delivered")
}

func TestWatcherDirectoryDeleteCarriesIsDir(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	dir := filepath.Join(root, "lot2")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Kind == models.EventDeleted && ev.Path == dir && ev.IsDir {
				return true
			}
		}
		return false
	}, "directory delete not delivered with IsDir")
}

func TestWatcherRename(t *testing.T) {
	rec := &recorder{}
	root := startWatcher(t, rec)

	src := filepath.Join(root, "a.pdf")
	if err := os.WriteFile(src, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(models.EventCreated, src)
	}, "created event not delivered")

	dest := filepath.Join(root, "b.pdf")
	if err := os.Rename(src, dest); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Kind == models.EventMoved && ev.Path == src && ev.DestPath == dest {
				return true
			}
		}
		return false
	}, "moved event not delivered")
}

// The consumer tests below feed the queue directly so timing depends only on
// the settle delay.

func runConsumer(t *testing.T, h Handler, cfg Config) chan<- models.ChangeEvent {
	t.Helper()
	w := New(t.TempDir(), h, WithConfig(cfg), WithLogger(quiet()))
	queue := make(chan models.ChangeEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		w.consume(ctx, queue)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return queue
}

func TestConsumerDebouncesSameSizeModify(t *testing.T) {
	rec := &recorder{}
	queue := runConsumer(t, rec, fastConfig)

	p := filepath.Join(t.TempDir(), "cps.pdf")
	if err := os.WriteFile(p, []byte("same size"), 0o644); err != nil {
		t.Fatal(err)
	}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventModified}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventModified}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 1
	}, "expected one processing pass")
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(p); n != 1 {
		t.Errorf("passes = %d, want 1", n)
	}
}

func TestConsumerDirectoryMovedOutForgetsChildren(t *testing.T) {
	rec := &recorder{}
	queue := runConsumer(t, rec, fastConfig)

	dir := filepath.Join(t.TempDir(), "lot1")
	p := filepath.Join(dir, "cps.pdf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("same size"), 0o644); err != nil {
		t.Fatal(err)
	}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventCreated}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 1
	}, "first pass not processed")

	// The directory leaves the tree and comes back inside the quiet window
	// with an unchanged child.
	queue <- models.ChangeEvent{Path: dir, Kind: models.EventMoved, IsDir: true}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventCreated}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 2
	}, "re-created child was debounced")
}

func TestConsumerSettleKeepsCreatedKind(t *testing.T) {
	rec := &recorder{}
	queue := runConsumer(t, rec, fastConfig)

	p := filepath.Join(t.TempDir(), "cps.pdf")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventCreated}
	if err := os.WriteFile(p, []byte("grown"), 0o644); err != nil {
		t.Fatal(err)
	}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventModified}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 1
	}, "expected one processing pass")
	if evs := rec.snapshot(); len(evs) != 1 || evs[0].Kind != models.EventCreated {
		t.Errorf("events = %+v", evs)
	}
}

func TestConsumerDeleteBypassesSettle(t *testing.T) {
	rec := &recorder{}
	queue := runConsumer(t, rec, Config{QuietWindow: time.Second, SettleDelay: time.Hour, QueueSize: 4})

	p := filepath.Join(t.TempDir(), "cps.pdf")
	queue <- models.ChangeEvent{Path: p, Kind: models.EventCreated}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventDeleted}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.has(models.EventDeleted, p)
	}, "delete not processed immediately")
	if rec.has(models.EventCreated, p) {
		t.Error("settling create survived the delete")
	}
}

func TestConsumerOneRunPerPath(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	queue := runConsumer(t, rec, Config{QuietWindow: time.Millisecond, SettleDelay: time.Millisecond, QueueSize: 4})

	p := filepath.Join(t.TempDir(), "cps.pdf")
	queue <- models.ChangeEvent{Path: p, Kind: models.EventDeleted}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 1
	}, "first run not started")

	queue <- models.ChangeEvent{Path: p, Kind: models.EventDeleted}
	queue <- models.ChangeEvent{Path: p, Kind: models.EventDeleted}
	time.Sleep(50 * time.Millisecond)
	if n := rec.count(p); n != 1 {
		t.Fatalf("runs started while one in flight = %d", n)
	}

	for range 3 {
		rec.gate <- struct{}{}
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.count(p) == 3
	}, "queued runs not drained")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.peak != 1 {
		t.Errorf("peak concurrency for one path = %d", rec.peak)
	}
}

func TestConsumerPathsRunConcurrently(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	queue := runConsumer(t, rec, fastConfig)

	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")
	queue <- models.ChangeEvent{Path: a, Kind: models.EventDeleted}
	queue <- models.ChangeEvent{Path: b, Kind: models.EventDeleted}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.active == 2
	}, "paths did not run concurrently")
	rec.gate <- struct{}{}
	rec.gate <- struct{}{}
}
