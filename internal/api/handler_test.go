package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/pipeline"
	"github.com/adrianoneco/wpp-api/internal/session"
	"github.com/adrianoneco/wpp-api/internal/store"
	"github.com/go-chi/chi/v5"
)

func TestValidSessionName(t *testing.T) {
	valid := []string{"alice", "team-01", "my_session", "A1"}
	for _, name := range valid {
		if !validSessionName(name) {
			t.Errorf("validSessionName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", "has space", "dots.are.bad", "slash/inside", "emoji😀", string(make([]byte, 65))}
	for _, name := range invalid {
		if validSessionName(name) {
			t.Errorf("validSessionName(%q) = true, want false", name)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	raw := []byte("hello media")
	plain := base64.StdEncoding.EncodeToString(raw)

	got, err := decodePayload(plain)
	if err != nil || !bytes.Equal(got, raw) {
		t.Errorf("decodePayload(plain) = %q, %v", got, err)
	}

	dataURL := "data:image/png;base64," + plain
	got, err = decodePayload(dataURL)
	if err != nil || !bytes.Equal(got, raw) {
		t.Errorf("decodePayload(data URL) = %q, %v", got, err)
	}

	if _, err := decodePayload("!!not-base64!!"); err == nil {
		t.Error("decodePayload accepted invalid input")
	}
}

func TestSessionKeyScoping(t *testing.T) {
	tests := []struct {
		session string
		key     string
		ok      bool
	}{
		{"alice", "", true},
		{"alice", "alice/photo.png", true},
		{"alice", "bob/photo.png", false},
		{"alice", "alice/../bob/photo.png", false},
		{"alice", "photo.png", false},
	}
	for _, tt := range tests {
		if _, ok := sessionKey(tt.session, tt.key); ok != tt.ok {
			t.Errorf("sessionKey(%q, %q) ok = %v, want %v", tt.session, tt.key, ok, tt.ok)
		}
	}
}

func newTestRouter(t *testing.T, repo store.Repository) chi.Router {
	t.Helper()
	base := NewHandler(repo)
	pipe := pipeline.New(session.NewRegistry(), repo, nil)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	NewMessageHandler(base, pipe).RegisterRoutes(r)

	// Status and QR routes do not need a live controller.
	sh := &SessionHandler{Handler: base}
	r.Get("/api/sessions/{name}/status", sh.Status)
	r.Get("/api/sessions/{name}/qrcode", sh.QRCode)
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body
}

func TestStatusEndpoint(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	if err := repo.UpsertSession(ctx, &domain.Session{
		Name:   "alice",
		Status: domain.StatusConnected,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nobody/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status code = %d, want 404", rec.Code)
	}
	body = decodeResponse(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestQRCodeEndpoint(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	if err := repo.UpsertSession(ctx, &domain.Session{
		Name:      "alice",
		Status:    domain.StatusQRCode,
		QRImage:   "data:image/png;base64,AAAA",
		QRPayload: "2@pairing-code",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/qrcode", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["qrcode"] != "data:image/png;base64,AAAA" {
		t.Errorf("qrcode = %v, want the stored image", body["qrcode"])
	}
	if body["urlcode"] != "2@pairing-code" {
		t.Errorf("urlcode = %v", body["urlcode"])
	}

	// Re-rendering at a custom size produces a fresh image.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/qrcode?size=512", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code with size = %d, want 200", rec.Code)
	}
	body = decodeResponse(t, rec)
	img, _ := body["qrcode"].(string)
	if img == "" || img == "data:image/png;base64,AAAA" {
		t.Errorf("size param did not re-render the code: %q", img)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/qrcode?size=10", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range size code = %d, want 400", rec.Code)
	}

	// No QR pending once the session moved on.
	if err := repo.UpsertSession(ctx, &domain.Session{Name: "bob", Status: domain.StatusConnected}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/bob/qrcode", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("no-pending-qr code = %d, want 404", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	if err := repo.UpsertSession(ctx, &domain.Session{Name: "alice", Status: domain.StatusConnected}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if err := repo.InsertMessage(ctx, &domain.Message{
			SessionName: "alice",
			MessageID:   id,
			From:        "bob@s.whatsapp.net",
			Type:        domain.TypeText,
			Status:      domain.MessagePending,
			Timestamp:   time.Now().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/messages/?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	body := decodeResponse(t, rec)
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Errorf("returned %d messages, want 2", len(msgs))
	}
	if body["total"] != float64(3) {
		t.Errorf("total = %v, want 3", body["total"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/alice/messages/?limit=9999", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized limit code = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nobody/messages/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session code = %d, want 404", rec.Code)
	}
}

func TestSendTextValidation(t *testing.T) {
	repo := store.NewMemory()
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/alice/messages/text",
		bytes.NewBufferString(`{"to": "", "body": ""}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty send code = %d, want 400", rec.Code)
	}

	// A session without a live handle rejects sends with 404.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/alice/messages/text",
		bytes.NewBufferString(`{"to": "5511888888888", "body": "hi"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("offline session send code = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	repo := store.NewMemory()
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health code = %d, want 200", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}
