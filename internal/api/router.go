package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(d Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Chat.
	r.Post("/chat/stream-query", h.StreamQuery)
	r.Post("/chat/query-by-filename", h.QueryByFilename)

	// Conversations.
	r.Get("/chat/conversations", h.ListConversations)
	r.Post("/chat/conversations", h.CreateConversation)
	r.Get("/chat/conversations/{id}", h.GetConversation)
	r.Put("/chat/conversations/{id}", h.ReplaceConversation)
	r.Delete("/chat/conversations/{id}", h.DeleteConversation)
	r.Post("/chat/conversations/{id}/messages", h.UpsertMessage)

	// Metadata.
	r.Get("/metadata", h.AllMetadata)
	r.Get("/metadata/{filename}", h.GetMetadata)
	r.Put("/metadata/{filename}", h.PutMetadata)
	r.Get("/metadata_keys", h.MetadataKeys)
	r.Get("/batch_metadata", h.BatchMetadata)

	// Documents.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.UploadFile)
	r.Post("/files/move", h.MoveFile)
	r.Get("/files/*", h.DownloadFile)
	r.Delete("/files/*", h.DeleteFile)
	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
