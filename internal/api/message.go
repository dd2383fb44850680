package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
	"github.com/adrianoneco/wpp-api/internal/pipeline"
	"github.com/adrianoneco/wpp-api/internal/store"
	"github.com/go-chi/chi/v5"
)

// MessageHandler handles message egress and history endpoints.
type MessageHandler struct {
	*Handler
	pipe *pipeline.Pipeline
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(base *Handler, pipe *pipeline.Pipeline) *MessageHandler {
	return &MessageHandler{Handler: base, pipe: pipe}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{name}/messages", func(r chi.Router) {
		r.Get("/", h.History)
		r.Post("/text", h.SendText)
		r.Post("/image", h.SendImage)
		r.Post("/file", h.SendFile)
		r.Post("/voice", h.SendVoice)
		r.Post("/location", h.SendLocation)
	})
}

type sendTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMediaRequest struct {
	To       string `json:"to"`
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type sendLocationRequest struct {
	To        string  `json:"to"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title,omitempty"`
}

// SendText sends a plain text message.
func (h *MessageHandler) SendText(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req sendTextRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.Body == "" {
		Error(w, http.StatusBadRequest, "to and body are required")
		return
	}

	msg, err := h.pipe.SendText(r.Context(), name, req.To, req.Body)
	if err != nil {
		slog.Error("Failed to send text", "error", err, "session", name)
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": msg})
}

// SendImage sends an image with an optional caption.
func (h *MessageHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	h.sendMedia(w, r, "image")
}

// SendFile sends an arbitrary document.
func (h *MessageHandler) SendFile(w http.ResponseWriter, r *http.Request) {
	h.sendMedia(w, r, "file")
}

// SendVoice sends an audio payload as a voice note.
func (h *MessageHandler) SendVoice(w http.ResponseWriter, r *http.Request) {
	h.sendMedia(w, r, "voice")
}

func (h *MessageHandler) sendMedia(w http.ResponseWriter, r *http.Request, kind string) {
	name := chi.URLParam(r, "name")

	var req sendMediaRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.Base64 == "" {
		Error(w, http.StatusBadRequest, "to and base64 are required")
		return
	}
	data, err := decodePayload(req.Base64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid base64 payload")
		return
	}

	ctx := r.Context()
	var msg *domain.Message
	switch kind {
	case "image":
		msg, err = h.pipe.SendImage(ctx, name, req.To, data, req.Mimetype, req.Caption)
	case "voice":
		msg, err = h.pipe.SendVoice(ctx, name, req.To, data, req.Mimetype)
	default:
		if req.Filename == "" {
			Error(w, http.StatusBadRequest, "filename is required")
			return
		}
		msg, err = h.pipe.SendFile(ctx, name, req.To, data, req.Filename, req.Mimetype, req.Caption)
	}
	if err != nil {
		slog.Error("Failed to send media", "error", err, "session", name, "kind", kind)
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": msg})
}

// SendLocation sends a geographic location.
func (h *MessageHandler) SendLocation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req sendLocationRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" {
		Error(w, http.StatusBadRequest, "to is required")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		Error(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	msg, err := h.pipe.SendLocation(r.Context(), name, req.To, driver.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Name:      req.Title,
	})
	if err != nil {
		slog.Error("Failed to send location", "error", err, "session", name)
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": msg})
}

// History returns persisted messages for a session, newest first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
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

	q := r.URL.Query()
	filter := store.MessageFilter{
		From: q.Get("from"),
		To:   q.Get("to"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "page must be >= 1")
			return
		}
		filter.Page = n
	}

	msgs, err := h.repo.ListMessages(r.Context(), name, filter)
	if err != nil {
		fail(w, err)
		return
	}
	total, err := h.repo.CountMessages(r.Context(), name, filter)
	if err != nil {
		fail(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": msgs,
		"total":    total,
	})
}
