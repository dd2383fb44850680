package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

const maxSessionNameLen = 64

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
	controller *session.Controller
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler, controller *session.Controller) *SessionHandler {
	return &SessionHandler{Handler: base, controller: controller}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/status", h.Status)
			r.Get("/qrcode", h.QRCode)
			r.Post("/close", h.Close)
			r.Post("/logout", h.Logout)
		})
	})
}

// validSessionName restricts names to what is safe in storage keys and
// file paths.
func validSessionName(name string) bool {
	if name == "" || len(name) > maxSessionNameLen {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

type createSessionRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Create starts (or resumes) a session and begins the pairing flow.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validSessionName(req.Name) {
		Error(w, http.StatusBadRequest, "invalid session name")
		return
	}

	ctx := r.Context()
	slog.Info("Initializing session", "session", req.Name)

	if err := h.controller.Initialize(ctx, req.Name); err != nil {
		slog.Error("Failed to initialize session", "error", err, "session", req.Name)
		fail(w, err)
		return
	}

	sess, err := h.repo.GetSession(ctx, req.Name)
	if err != nil || sess == nil {
		Error(w, http.StatusInternalServerError, "failed to load session state")
		return
	}
	if len(req.Metadata) > 0 {
		sess.Metadata = req.Metadata
		if err := h.repo.UpsertSession(ctx, sess); err != nil {
			slog.Error("Failed to store session metadata", "error", err, "session", req.Name)
		}
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"session": sess,
	})
}

// List returns all known sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": sessions,
	})
}

// Status returns the current state of one session.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sess, err := h.repo.GetSession(r.Context(), name)
	if err != nil {
		fail(w, err)
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": sess,
	})
}

// QRCode returns the pairing QR code while one is pending. A size
// query parameter re-renders the code at the requested pixel size.
func (h *SessionHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sess, err := h.repo.GetSession(r.Context(), name)
	if err != nil {
		fail(w, err)
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Status != domain.StatusQRCode || sess.QRPayload == "" {
		Error(w, http.StatusNotFound, "no qr code pending")
		return
	}

	image := sess.QRImage
	if raw := r.URL.Query().Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 64 || size > 2048 {
			Error(w, http.StatusBadRequest, "size must be between 64 and 2048")
			return
		}
		png, err := qrcode.Encode(sess.QRPayload, qrcode.Medium, size)
		if err != nil {
			Error(w, http.StatusInternalServerError, "failed to render qr code")
			return
		}
		image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"qrcode":  image,
		"urlcode": sess.QRPayload,
	})
}

// Close disconnects a session, keeping its pairing for later resume.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	slog.Info("Closing session", "session", name)

	if err := h.controller.Close(r.Context(), name); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Logout disconnects a session and discards its account pairing.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	slog.Info("Logging out session", "session", name)

	if err := h.controller.Logout(r.Context(), name); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
