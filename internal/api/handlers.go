package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/conversation"
	"github.com/starford/dossier/internal/docservice"
	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/rag"
)

const maxJSONBytes = 1 << 20

// Deps are the services the API is built on.
type Deps struct {
	Pipeline      *rag.Pipeline
	Conversations *conversation.Store
	Metadata      *metastore.Store
	Documents     *docservice.Service
}

// Handler holds API route handlers.
type Handler struct {
	rag   *rag.Pipeline
	convs *conversation.Store
	meta  *metastore.Store
	docs  *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{rag: d.Pipeline, convs: d.Conversations, meta: d.Metadata, docs: d.Documents}
}

// wildcardPath extracts the path after the route prefix. Supports encoded
// slashes from clients (e.g. lot1%2Fcps.pdf).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// StreamQuery handles POST /api/chat/stream-query.
//
//	@Summary		Answer a question as an NDJSON stream
//	@Tags			chat
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			body	body		QueryRequest	true	"Question"
//	@Success		200		{string}	string			"response fragments, then sources"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/stream-query [post]
func (h *Handler) StreamQuery(w http.ResponseWriter, r *http.Request) {
	var req rag.Request
	if !decodeJSON(w, r, maxJSONBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query_text is required"))
		return
	}
	ret, err := h.rag.Retrieve(r.Context(), req.Query)
	h.stream(w, r, req, ret, err)
}

// QueryByFilename handles POST /api/chat/query-by-filename.
//
//	@Summary		Answer a question about the file attached to a conversation
//	@Tags			chat
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			body	body		QueryRequest	true	"Question and conversation"
//	@Success		200		{string}	string			"response fragments, then sources"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/query-by-filename [post]
func (h *Handler) QueryByFilename(w http.ResponseWriter, r *http.Request) {
	var req rag.Request
	if !decodeJSON(w, r, maxJSONBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ConversationID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query_text and conversation_id are required"))
		return
	}
	ret, err := h.rag.RetrieveFile(r.Context(), req)
	if errors.Is(err, rag.ErrNoFileSelected) {
		writeJSON(w, http.StatusBadRequest, errorBody("no file selected"))
		return
	}
	h.stream(w, r, req, ret, err)
}

// stream opens the NDJSON response. A retrieval error that is the client's
// fault is a 400; anything else is reported on the stream.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req rag.Request, ret rag.Retrieval, err error) {
	if errors.Is(err, apperr.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	nw := rag.NewWriter(w)
	if err != nil {
		h.rag.Fail(nw, err)
		return
	}
	if err := h.rag.Stream(r.Context(), req, ret, nw); err != nil {
		slog.Debug("api: stream ended", slog.String("error", err.Error()))
	}
}
