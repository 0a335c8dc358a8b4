package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/starford/dossier/internal/docservice"
)

// ListFiles handles GET /api/files.
//
//	@Summary		List documents under the root
//	@Tags			files
//	@Produce		json
//	@Param			dir	query		string	false	"Subdirectory"
//	@Success		200	{object}	FileListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	items, err := h.docs.List(r.Context(), r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	if items == nil {
		items = []docservice.DocumentItem{}
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items, Total: len(items)})
}

// UploadFile handles POST /api/files (multipart/form-data, field "file").
// An optional "relative_path" field places the file in a subdirectory, which
// is how folder uploads keep their layout.
//
//	@Summary		Upload a document
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file			formData	file	true	"Document"
//	@Param			relative_path	formData	string	false	"Target path under the root"
//	@Success		201				{object}	models.DocumentInfo
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, docservice.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	target := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if rel := strings.TrimSpace(r.FormValue("relative_path")); rel != "" {
		target = rel
	}
	info, err := h.docs.Upload(r.Context(), target, file)
	if err != nil {
		writeError(w, "upload file", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// MoveFile handles POST /api/files/move.
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, maxJSONBytes, &req) {
		return
	}
	if err := h.docs.Move(r.Context(), req.From, req.To); err != nil {
		writeError(w, "move file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFile handles DELETE /api/files/*. Directories are removed whole.
//
//	@Summary		Delete a document or a directory
//	@Tags			files
//	@Param			path	path	string	true	"Path under the root"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.Context(), wildcardPath(r)); err != nil {
		writeError(w, "delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadFile handles GET /api/files/*.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.docs.Open(r.Context(), wildcardPath(r))
	if err != nil {
		writeError(w, "download file", err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.docs.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
