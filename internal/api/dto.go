package api

import (
	"github.com/starford/dossier/internal/docservice"
)

// QueryRequest is the request body of both chat endpoints.
type QueryRequest struct {
	QueryText      string `json:"query_text" example:"Quelle est la société titulaire du marché ?" validate:"required"`
	ConversationID string `json:"conversation_id,omitempty" example:"3f1c2a9e-6a53-4c1e-9b7e-2f0d8c1a7b44"`
}

// MetadataResponse wraps one file's metadata record.
type MetadataResponse struct {
	Metadata map[string]string `json:"metadata" validate:"required"`
	Success  bool              `json:"success" example:"true"`
	Message  string            `json:"message,omitempty" example:"processing"`
}

// KeysResponse lists the metadata keys kept by the store.
type KeysResponse struct {
	Keys []string `json:"keys" validate:"required"`
}

// FileListResponse wraps a document listing.
type FileListResponse struct {
	Files []docservice.DocumentItem `json:"files" validate:"required"`
	Total int                       `json:"total" example:"42" validate:"required"`
}

// MoveRequest is the request body for moving a document or a directory.
type MoveRequest struct {
	From string `json:"from" example:"lot1/cps.pdf" validate:"required"`
	To   string `json:"to" example:"archive/lot1/cps.pdf" validate:"required"`
}
