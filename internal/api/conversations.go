package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dossier/internal/models"
)

// ListConversations handles GET /api/chat/conversations.
//
//	@Summary		List conversations, newest first
//	@Tags			conversations
//	@Produce		json
//	@Success		200	{array}		models.Conversation
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/conversations [get]
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.convs.List(r.Context())
	if err != nil {
		writeError(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetConversation handles GET /api/chat/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.convs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateConversation handles POST /api/chat/conversations.
//
//	@Summary		Create a conversation
//	@Tags			conversations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Conversation	true	"Conversation; id is generated when empty"
//	@Success		201		{object}	models.Conversation
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/conversations [post]
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var c models.Conversation
	if !decodeJSON(w, r, maxJSONBytes, &c) {
		return
	}
	created, err := h.convs.Create(r.Context(), c)
	if err != nil {
		writeError(w, "create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ReplaceConversation handles PUT /api/chat/conversations/{id}.
//
//	@Summary		Replace a conversation and its messages
//	@Tags			conversations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Conversation id"
//	@Param			body	body		models.Conversation	true	"New content"
//	@Success		200		{object}	models.Conversation
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/conversations/{id} [put]
func (h *Handler) ReplaceConversation(w http.ResponseWriter, r *http.Request) {
	var c models.Conversation
	if !decodeJSON(w, r, maxJSONBytes, &c) {
		return
	}
	updated, err := h.convs.Replace(r.Context(), chi.URLParam(r, "id"), c)
	if err != nil {
		writeError(w, "replace conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteConversation handles DELETE /api/chat/conversations/{id}.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertMessage handles POST /api/chat/conversations/{id}/messages.
//
//	@Summary		Add, patch or delete one message
//	@Tags			conversations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Conversation id"
//	@Param			body	body		models.MessageUpdate	true	"Message update"
//	@Success		200		{object}	conversation.UpsertResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat/conversations/{id}/messages [post]
func (h *Handler) UpsertMessage(w http.ResponseWriter, r *http.Request) {
	var u models.MessageUpdate
	if !decodeJSON(w, r, maxJSONBytes, &u) {
		return
	}
	res, err := h.convs.UpsertMessage(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		writeError(w, "upsert message", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
