package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/adrianoneco/wpp-api/internal/media"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MediaHandler handles object-store endpoints. Every key is scoped
// under the session's own prefix; cross-session access is rejected.
type MediaHandler struct {
	*Handler
	store media.Store
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(base *Handler, store media.Store) *MediaHandler {
	return &MediaHandler{Handler: base, store: store}
}

// RegisterRoutes registers media routes.
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{name}/media", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/", h.List)
		r.Get("/url", h.URL)
		r.Delete("/", h.Delete)
	})
}

// sessionKey validates that key belongs to the session's prefix. An
// empty key is allowed for operations that generate one.
func sessionKey(sessionName, key string) (string, bool) {
	if key == "" {
		return "", true
	}
	if strings.Contains(key, "..") {
		return "", false
	}
	if !strings.HasPrefix(key, sessionName+"/") {
		return "", false
	}
	return key, true
}

type uploadMediaRequest struct {
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
	Key      string `json:"key,omitempty"`
}

// Upload stores a base64 payload in the object store and returns its
// key and a presigned URL.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req uploadMediaRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Base64 == "" {
		Error(w, http.StatusBadRequest, "base64 is required")
		return
	}
	data, err := decodePayload(req.Base64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid base64 payload")
		return
	}

	key, ok := sessionKey(name, req.Key)
	if !ok {
		Error(w, http.StatusBadRequest, "key must be scoped to the session")
		return
	}
	if key == "" {
		key = name + "/" + uuid.NewString() + "." + media.ExtensionFor(req.Mimetype)
	}

	obj, err := h.store.Upload(r.Context(), data, req.Mimetype, key)
	if err != nil {
		slog.Error("Failed to upload media", "error", err, "session", name)
		Error(w, http.StatusInternalServerError, "failed to upload media")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"object":  obj,
	})
}

// List returns the objects stored under the session's prefix.
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	objects, err := h.store.List(r.Context(), name+"/")
	if err != nil {
		slog.Error("Failed to list media", "error", err, "session", name)
		Error(w, http.StatusInternalServerError, "failed to list media")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"objects": objects,
	})
}

// URL returns a fresh presigned URL for one object.
func (h *MediaHandler) URL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	key, ok := sessionKey(name, r.URL.Query().Get("key"))
	if !ok || key == "" {
		Error(w, http.StatusBadRequest, "key must be scoped to the session")
		return
	}

	url, err := h.store.URL(r.Context(), key, 0)
	if err != nil {
		slog.Error("Failed to presign media URL", "error", err, "session", name, "key", key)
		Error(w, http.StatusInternalServerError, "failed to presign url")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     key,
		"url":     url,
	})
}

// Delete removes one object from the store.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	key, ok := sessionKey(name, r.URL.Query().Get("key"))
	if !ok || key == "" {
		Error(w, http.StatusBadRequest, "key must be scoped to the session")
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		slog.Error("Failed to delete media", "error", err, "session", name, "key", key)
		Error(w, http.StatusInternalServerError, "failed to delete media")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
