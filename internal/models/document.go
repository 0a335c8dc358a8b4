// Package models defines the domain types for Dossier.
package models

import (
	"path/filepath"
	"time"
)

// EventKind classifies a filesystem change.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventMoved    EventKind = "moved"
)

// ChangeEvent is a normalized filesystem notification. DestPath is only set
// for moves. IsDir is true when the path was a directory when last observed.
type ChangeEvent struct {
	Path     string
	Kind     EventKind
	DestPath string
	IsDir    bool
}

// Page is one loader unit of a document, in document order.
type Page struct {
	Source string
	Number int
	Text   string
}

// Chunk is a bounded content window derived from one page.
type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Page     int               `json:"page"`
	Seq      int               `json:"seq"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Filename returns the base name of the chunk's source.
func (c Chunk) Filename() string {
	return filepath.Base(c.Source)
}

// Candidate is a retrieved chunk carrying its similarity and rerank scores.
type Candidate struct {
	Chunk       Chunk
	Score       float64
	RerankScore float64
}

// Source is the attribution record sent to clients and saved on messages.
type Source struct {
	Source        string  `json:"source"`
	Page          int     `json:"page"`
	ID            string  `json:"id"`
	Score         float64 `json:"score"`
	OriginalScore float64 `json:"original_score"`
}

// SourceFromCandidate builds the attribution record for a used candidate.
func SourceFromCandidate(c Candidate) Source {
	return Source{
		Source:        c.Chunk.Filename(),
		Page:          c.Chunk.Page,
		ID:            c.Chunk.ID,
		Score:         c.RerankScore,
		OriginalScore: c.Score,
	}
}

// DocumentInfo describes a document file under the watched root.
type DocumentInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
