package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adrianoneco/wpp-api/internal/events"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const eventWriteTimeout = 10 * time.Second

// EventsHandler streams session updates over WebSocket.
type EventsHandler struct {
	*Handler
	hub           *events.Hub
	allowedOrigin string
	isDev         bool
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(base *Handler, hub *events.Hub, allowedOrigin string, isDev bool) *EventsHandler {
	return &EventsHandler{
		Handler:       base,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers the websocket route.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/sessions/{name}/events", h.ServeHTTP)
}

// ServeHTTP upgrades the connection and relays the session's update
// stream until the client goes away.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	slog.Info("WebSocket connection request", "session", name, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, err := h.repo.GetSession(r.Context(), name)
	if err != nil || sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session", name)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session", name)
		}
	}()

	sub := h.hub.Subscribe(name)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so pings are answered and a client close
	// ends the stream promptly.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	// Send the current record first so the client does not have to
	// wait for the next change.
	if err := h.writeUpdate(ctx, ws, events.SessionUpdate{Type: "session.snapshot", Session: sess}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.writeUpdate(ctx, ws, update); err != nil {
				slog.Debug("WebSocket write failed", "error", err, "session", name)
				return
			}
		}
	}
}

func (h *EventsHandler) writeUpdate(ctx context.Context, ws *websocket.Conn, update events.SessionUpdate) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, ws, update)
}

// checkOrigin validates the request origin against the configured
// frontend URL. Development mode allows any origin.
func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, h.allowedOrigin)
}
