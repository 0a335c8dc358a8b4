package rag

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/starford/dossier/internal/models"
)

type flusher interface {
	Flush()
}

// Writer emits the newline-delimited JSON answer stream. Every fragment is
// flushed as soon as it is written when the underlying writer supports it.
type Writer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	flush   flusher
	written bool
}

// NewWriter returns a Writer over w. If w has a Flush method (as
// http.ResponseWriter usually does) it is called after each fragment.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	f, _ := w.(flusher)
	return &Writer{enc: enc, flush: f}
}

// Response emits one {"response": fragment} line.
func (w *Writer) Response(fragment string) error {
	return w.emit(struct {
		Response string `json:"response"`
	}{fragment})
}

// Sources emits the {"sources": [...]} line.
func (w *Writer) Sources(sources []models.Source) error {
	return w.emit(struct {
		Sources []models.Source `json:"sources"`
	}{sources})
}

// Error emits the terminal {"error": msg} line.
func (w *Writer) Error(msg string) error {
	return w.emit(struct {
		Error string `json:"error"`
	}{msg})
}

// Written reports whether any fragment was emitted.
func (w *Writer) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) emit(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	w.written = true
	if w.flush != nil {
		w.flush.Flush()
	}
	return nil
}
