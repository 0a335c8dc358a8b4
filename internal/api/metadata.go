package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/metastore"
)

// GetMetadata handles GET /api/metadata/{filename}. A file whose record is
// still empty is reported as processing rather than missing.
//
//	@Summary		Get the metadata record of a file
//	@Tags			metadata
//	@Produce		json
//	@Param			filename	path		string	true	"Base file name"
//	@Success		200			{object}	MetadataResponse
//	@Security		BearerAuth
//	@Router			/metadata/{filename} [get]
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	fields, err := h.meta.Get(r.Context(), chi.URLParam(r, "filename"))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusOK, MetadataResponse{Metadata: map[string]string{}, Message: "no metadata available"})
	case err != nil:
		writeError(w, "get metadata", err)
	case len(fields) == 0:
		writeJSON(w, http.StatusOK, MetadataResponse{Metadata: fields, Message: "processing"})
	default:
		writeJSON(w, http.StatusOK, MetadataResponse{Metadata: fields, Success: true})
	}
}

// PutMetadata handles PUT /api/metadata/{filename}.
//
//	@Summary		Replace the metadata record of a file
//	@Description	Keys outside the allow-list are dropped.
//	@Tags			metadata
//	@Accept			json
//	@Produce		json
//	@Param			filename	path		string				true	"Base file name"
//	@Param			body		body		map[string]string	true	"Fields"
//	@Success		200			{object}	MetadataResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/metadata/{filename} [put]
func (h *Handler) PutMetadata(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if !decodeJSON(w, r, maxJSONBytes, &fields) {
		return
	}
	stored, err := h.meta.Put(r.Context(), chi.URLParam(r, "filename"), fields)
	if err != nil {
		writeError(w, "put metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, MetadataResponse{Metadata: stored, Success: true})
}

// AllMetadata handles GET /api/metadata.
func (h *Handler) AllMetadata(w http.ResponseWriter, r *http.Request) {
	all, err := h.meta.All(r.Context())
	if err != nil {
		writeError(w, "list metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// MetadataKeys handles GET /api/metadata_keys.
func (h *Handler) MetadataKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, KeysResponse{Keys: metastore.Keys()})
}

// BatchMetadata handles GET /api/batch_metadata?filenames=a.pdf,b.pdf.
// Files without a record are omitted.
//
//	@Summary		Get the metadata of several files
//	@Tags			metadata
//	@Produce		json
//	@Param			filenames	query		string	true	"Comma-separated base file names"
//	@Success		200			{object}	map[string]map[string]string
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batch_metadata [get]
func (h *Handler) BatchMetadata(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("filenames"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("filenames is required"))
		return
	}
	out := make(map[string]map[string]string, len(names))
	for _, n := range names {
		fields, err := h.meta.Get(r.Context(), n)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			writeError(w, "batch metadata", err)
			return
		}
		out[n] = fields
	}
	writeJSON(w, http.StatusOK, out)
}
