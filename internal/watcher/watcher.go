// Package watcher turns fsnotify notifications on the document root into
// settled, per-path serialized change events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

// renameWindow is how long a Rename waits for the Create that completes a
// move before it is treated as a deletion.
const renameWindow = 200 * time.Millisecond

// Handler processes one change event.
type Handler interface {
	Handle(ctx context.Context, ev models.ChangeEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev models.ChangeEvent) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev models.ChangeEvent) error { return f(ctx, ev) }

// Config tunes the watcher.
type Config struct {
	QuietWindow time.Duration
	SettleDelay time.Duration
	QueueSize   int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		QuietWindow: 5 * time.Second,
		SettleDelay: 500 * time.Millisecond,
		QueueSize:   256,
	}
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root    string
	cfg     Config
	handler Handler
	logger  *slog.Logger
	ready   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithConfig overrides the tuning. Zero fields keep their defaults.
func WithConfig(c Config) Option {
	return func(w *Watcher) {
		if c.QuietWindow > 0 {
			w.cfg.QuietWindow = c.QuietWindow
		}
		if c.SettleDelay > 0 {
			w.cfg.SettleDelay = c.SettleDelay
		}
		if c.QueueSize > 0 {
			w.cfg.QueueSize = c.QueueSize
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher on root that feeds h.
func New(root string, h Handler, opts ...Option) *Watcher {
	w := &Watcher{
		root:    root,
		cfg:     DefaultConfig(),
		handler: h,
		logger:  slog.Default(),
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled. It returns after every goroutine it
// started, processing runs included, has finished.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	queue := make(chan models.ChangeEvent, w.cfg.QueueSize)
	p := &producer{
		fw:     fw,
		queue:  queue,
		known:  make(map[string]struct{}),
		logger: w.logger,
	}
	if err := p.addDirs(w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx)
	}()
	close(w.ready)

	w.consume(ctx, queue)
	wg.Wait()
	w.logger.Info("watcher: stopped")
	return nil
}

// ignored reports whether a base name belongs to editor, office or system
// noise: hidden files, "~$" lock files, "~" backups and ".tmp" files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "~$") ||
		strings.HasPrefix(name, "~") ||
		strings.HasSuffix(name, ".tmp")
}

// --- producer ---

type pendingRename struct {
	path  string
	isDir bool
}

// producer translates fsnotify events into ChangeEvents. It owns the set of
// watched directories.
type producer struct {
	fw     *fsnotify.Watcher
	queue  chan<- models.ChangeEvent
	known  map[string]struct{}
	logger *slog.Logger

	rename *pendingRename
	timer  *time.Timer
}

func (p *producer) run(ctx context.Context) {
	p.timer = time.NewTimer(renameWindow)
	p.timer.Stop()
	defer p.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.timer.C:
			if p.rename != nil {
				r := p.rename
				p.rename = nil
				p.emit(ctx, models.ChangeEvent{Path: r.path, Kind: models.EventMoved, IsDir: r.isDir})
			}

		case ev, ok := <-p.fw.Events:
			if !ok {
				return
			}
			p.translate(ctx, ev)

		case err, ok := <-p.fw.Errors:
			if !ok {
				return
			}
			p.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (p *producer) translate(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	if ignored(filepath.Base(path)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		isDir := err == nil && info.IsDir()
		if isDir {
			if err := p.addDirs(path); err != nil {
				p.logger.Warn("watcher: add new dir failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		if r := p.rename; r != nil {
			p.rename = nil
			p.timer.Stop()
			p.emit(ctx, models.ChangeEvent{Path: r.path, Kind: models.EventMoved, DestPath: path, IsDir: isDir})
			return
		}
		switch {
		case isDir:
			p.emitTree(ctx, path)
		case err == nil:
			p.emit(ctx, models.ChangeEvent{Path: path, Kind: models.EventCreated})
		}

	case ev.Has(fsnotify.Write):
		if _, watched := p.known[path]; watched {
			return
		}
		p.emit(ctx, models.ChangeEvent{Path: path, Kind: models.EventModified})

	case ev.Has(fsnotify.Remove):
		isDir := p.forget(path)
		p.emit(ctx, models.ChangeEvent{Path: path, Kind: models.EventDeleted, IsDir: isDir})

	case ev.Has(fsnotify.Rename):
		if r := p.rename; r != nil {
			p.emit(ctx, models.ChangeEvent{Path: r.path, Kind: models.EventMoved, IsDir: r.isDir})
		}
		p.rename = &pendingRename{path: path, isDir: p.forget(path)}
		p.timer.Reset(renameWindow)
	}
}

// emitTree emits a created event for every file already present in a new
// directory.
func (p *producer) emitTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			p.emit(ctx, models.ChangeEvent{Path: path, Kind: models.EventCreated})
		}
		return nil
	})
}

// emit blocks until the consumer has room, or ctx is done.
func (p *producer) emit(ctx context.Context, ev models.ChangeEvent) {
	select {
	case p.queue <- ev:
	case <-ctx.Done():
	}
}

// addDirs watches root and every non-hidden directory below it.
func (p *producer) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := p.fw.Add(path); err != nil {
			return err
		}
		p.known[path] = struct{}{}
		return nil
	})
}

// forget drops path and everything below it from the watched set and
// reports whether path itself was a watched directory.
func (p *producer) forget(path string) bool {
	_, isDir := p.known[path]
	if !isDir {
		return false
	}
	prefix := path + string(filepath.Separator)
	for k := range p.known {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(p.known, k)
			_ = p.fw.Remove(k)
		}
	}
	return true
}

// --- consumer ---

type settling struct {
	timer *time.Timer
	ev    models.ChangeEvent
	gen   uint64
}

type tick struct {
	path string
	gen  uint64
}

// consumer owns the debounce records, the settle timers and the in-flight
// set. Only the consume loop touches them.
type consumer struct {
	w        *Watcher
	debounce *Debouncer
	settling map[string]*settling
	inFlight map[string]struct{}
	pending  map[string][]models.ChangeEvent
	gen      uint64

	settled chan tick
	done    chan string
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (w *Watcher) consume(ctx context.Context, queue <-chan models.ChangeEvent) {
	c := &consumer{
		w:        w,
		debounce: NewDebouncer(w.cfg.QuietWindow),
		settling: make(map[string]*settling),
		inFlight: make(map[string]struct{}),
		pending:  make(map[string][]models.ChangeEvent),
		settled:  make(chan tick),
		done:     make(chan string),
		stop:     make(chan struct{}),
	}
	defer func() {
		for _, s := range c.settling {
			s.timer.Stop()
		}
		close(c.stop)
		c.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			c.accept(ctx, ev)
		case t := <-c.settled:
			c.fire(ctx, t)
		case path := <-c.done:
			c.finish(ctx, path)
		}
	}
}

func (c *consumer) accept(ctx context.Context, ev models.ChangeEvent) {
	switch ev.Kind {
	case models.EventCreated, models.EventModified:
		if !c.debounce.Allow(ev.Path) {
			c.w.logger.Debug("watcher: debounced", slog.String("path", ev.Path))
			return
		}
		if prev, ok := c.settling[ev.Path]; ok {
			prev.timer.Stop()
			if prev.ev.Kind == models.EventCreated {
				ev.Kind = models.EventCreated
			}
		}
		c.schedule(ev)

	case models.EventDeleted, models.EventMoved:
		c.cancelUnder(ev.Path)
		c.dispatch(ctx, ev)
	}
}

// schedule (re)starts the settle delay for ev.Path.
func (c *consumer) schedule(ev models.ChangeEvent) {
	c.gen++
	t := tick{path: ev.Path, gen: c.gen}
	c.settling[ev.Path] = &settling{
		ev:  ev,
		gen: t.gen,
		timer: time.AfterFunc(c.w.cfg.SettleDelay, func() {
			select {
			case c.settled <- t:
			case <-c.stop:
			}
		}),
	}
}

// cancelUnder drops pending settles and debounce records for path and
// anything below it.
func (c *consumer) cancelUnder(path string) {
	prefix := path + string(filepath.Separator)
	for p, s := range c.settling {
		if p == path || strings.HasPrefix(p, prefix) {
			s.timer.Stop()
			delete(c.settling, p)
		}
	}
	c.debounce.ForgetUnder(path)
}

func (c *consumer) fire(ctx context.Context, t tick) {
	s, ok := c.settling[t.path]
	if !ok || s.gen != t.gen {
		return
	}
	delete(c.settling, t.path)
	c.dispatch(ctx, s.ev)
}

// dispatch runs ev now, or queues it behind the run already in flight for
// the same path. Consecutive content events coalesce into one run.
func (c *consumer) dispatch(ctx context.Context, ev models.ChangeEvent) {
	if _, busy := c.inFlight[ev.Path]; !busy {
		c.start(ctx, ev)
		return
	}
	q := c.pending[ev.Path]
	if n := len(q); n > 0 && isContent(q[n-1]) && isContent(ev) {
		return
	}
	c.pending[ev.Path] = append(q, ev)
}

func (c *consumer) start(ctx context.Context, ev models.ChangeEvent) {
	c.inFlight[ev.Path] = struct{}{}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.process(ctx, ev)
		select {
		case c.done <- ev.Path:
		case <-c.stop:
		}
	}()
}

// process runs the handler. Indexing is not interrupted by shutdown, so a
// file is never left half indexed.
func (c *consumer) process(ctx context.Context, ev models.ChangeEvent) {
	logger := c.w.logger.With(slog.String("path", ev.Path), slog.String("kind", string(ev.Kind)))
	err := c.w.handler.Handle(context.WithoutCancel(ctx), ev)
	switch {
	case err == nil:
		logger.Debug("watcher: processed")
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		logger.Debug("watcher: skipped unsupported file")
	default:
		logger.Warn("watcher: process failed", slog.String("error", err.Error()))
	}
}

func (c *consumer) finish(ctx context.Context, path string) {
	delete(c.inFlight, path)
	q := c.pending[path]
	if len(q) == 0 {
		return
	}
	if len(q) == 1 {
		delete(c.pending, path)
	} else {
		c.pending[path] = q[1:]
	}
	c.start(ctx, q[0])
}

func isContent(ev models.ChangeEvent) bool {
	return ev.Kind == models.EventCreated || ev.Kind == models.EventModified
}
