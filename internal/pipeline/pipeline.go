// Package pipeline turns inbound driver events into persisted message
// records and mirrors outbound sends into the same store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
	"github.com/adrianoneco/wpp-api/internal/media"
	"github.com/adrianoneco/wpp-api/internal/session"
	"github.com/adrianoneco/wpp-api/internal/store"
	"github.com/google/uuid"
)

// Pipeline classifies, offloads and persists messages. Inbound events
// reach it through the controller's per-session workers, which keeps
// processing for one session strictly ordered; egress is invoked
// directly from the API path.
type Pipeline struct {
	registry *session.Registry
	repo     store.Repository
	media    media.Store
}

// New creates a message pipeline. mediaStore may be nil; attachments
// are then recorded without an offloaded copy.
func New(registry *session.Registry, repo store.Repository, mediaStore media.Store) *Pipeline {
	return &Pipeline{
		registry: registry,
		repo:     repo,
		media:    mediaStore,
	}
}

// Classify determines the message type of an inbound event. The media
// flag plus mimetype prefix takes precedence over all content flags.
func Classify(msg *driver.InboundMessage) domain.MessageType {
	if msg.IsMedia {
		switch {
		case strings.HasPrefix(msg.Mimetype, "image/"):
			return domain.TypeImage
		case strings.HasPrefix(msg.Mimetype, "video/"):
			return domain.TypeVideo
		case strings.HasPrefix(msg.Mimetype, "audio/"):
			return domain.TypeAudio
		default:
			return domain.TypeDocument
		}
	}
	if msg.IsSticker {
		return domain.TypeSticker
	}
	if msg.HasLocation {
		return domain.TypeLocation
	}
	if msg.IsContactCard {
		return domain.TypeContact
	}
	return domain.TypeText
}

// Ingest processes one inbound driver event: classify, offload media,
// persist. Media failures degrade to a record without a media URL;
// only a store failure on the message itself is returned.
func (p *Pipeline) Ingest(ctx context.Context, sessionName string, h driver.Handle, msg *driver.InboundMessage) error {
	msgType := Classify(msg)

	mediaURL := ""
	if msg.IsMedia && p.media != nil {
		data, err := h.DecryptMedia(ctx, msg)
		if err != nil {
			slog.Warn("Failed to decrypt inbound media, persisting without it",
				"session", sessionName, "message_id", msg.ID, "error", err)
		} else {
			key := fmt.Sprintf("%s/%s.%s", sessionName, msg.ID, media.ExtensionFor(msg.Mimetype))
			obj, upErr := p.media.Upload(ctx, data, msg.Mimetype, key)
			if upErr != nil {
				slog.Warn("Failed to offload inbound media, persisting without it",
					"session", sessionName, "message_id", msg.ID, "error", upErr)
			} else {
				mediaURL = obj.URL
			}
		}
	}

	record := &domain.Message{
		SessionName: sessionName,
		MessageID:   msg.ID,
		From:        msg.From,
		To:          msg.To,
		Body:        msg.Body,
		Type:        msgType,
		MediaURL:    mediaURL,
		Mimetype:    msg.Mimetype,
		IsFromMe:    msg.IsFromMe,
		Timestamp:   msg.Timestamp,
		Status:      domain.MessagePending,
		Metadata:    inboundMetadata(msg),
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	// InsertMessage ignores duplicate message IDs, so redelivery of the
	// same event never creates a second record.
	if err := p.repo.InsertMessage(ctx, record); err != nil {
		return domain.NewStoreError("insert message", err)
	}
	return nil
}

func inboundMetadata(msg *driver.InboundMessage) map[string]string {
	md := make(map[string]string)
	if msg.SenderName != "" {
		md["notify_name"] = msg.SenderName
	}
	if msg.Caption != "" {
		md["caption"] = msg.Caption
	}
	if msg.Filename != "" {
		md["filename"] = msg.Filename
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// SendText sends a plain text message and mirrors it into the store.
func (p *Pipeline) SendText(ctx context.Context, sessionName, to, body string) (*domain.Message, error) {
	h, ok := p.registry.Lookup(sessionName)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	res, err := h.SendText(ctx, to, body)
	if err != nil {
		return nil, domain.NewDriverError("send text", sessionName, err)
	}

	msg := p.outbound(sessionName, res, body, domain.TypeText, "", "")
	p.record(ctx, msg)
	return msg, nil
}

// SendImage uploads the image to the media store, sends it through the
// driver and mirrors the result. A failed send deletes the uploaded
// object again so no orphan is left behind.
func (p *Pipeline) SendImage(ctx context.Context, sessionName, to string, data []byte, mimetype, caption string) (*domain.Message, error) {
	h, ok := p.registry.Lookup(sessionName)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if mimetype == "" {
		mimetype = "image/jpeg"
	}

	key := fmt.Sprintf("%s/sent-%s.%s", sessionName, uuid.NewString(), media.ExtensionFor(mimetype))
	obj := p.offload(ctx, sessionName, data, mimetype, key)

	res, err := h.SendImage(ctx, to, data, mimetype, caption)
	if err != nil {
		p.discard(ctx, sessionName, obj)
		return nil, domain.NewDriverError("send image", sessionName, err)
	}

	msg := p.outbound(sessionName, res, caption, domain.TypeImage, objectURL(obj), mimetype)
	p.record(ctx, msg)
	return msg, nil
}

// SendFile uploads the document to the media store, sends it through
// the driver and mirrors the result.
func (p *Pipeline) SendFile(ctx context.Context, sessionName, to string, data []byte, filename, mimetype, caption string) (*domain.Message, error) {
	h, ok := p.registry.Lookup(sessionName)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	key := fmt.Sprintf("%s/sent-%s", sessionName, sanitizeFilename(filename))
	obj := p.offload(ctx, sessionName, data, mimetype, key)

	res, err := h.SendFile(ctx, to, data, filename, mimetype, caption)
	if err != nil {
		p.discard(ctx, sessionName, obj)
		return nil, domain.NewDriverError("send file", sessionName, err)
	}

	msg := p.outbound(sessionName, res, caption, domain.TypeDocument, objectURL(obj), mimetype)
	p.record(ctx, msg)
	return msg, nil
}

// SendVoice sends an audio payload as a voice note.
func (p *Pipeline) SendVoice(ctx context.Context, sessionName, to string, data []byte, mimetype string) (*domain.Message, error) {
	h, ok := p.registry.Lookup(sessionName)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if mimetype == "" {
		mimetype = "audio/ogg"
	}

	key := fmt.Sprintf("%s/sent-%s.%s", sessionName, uuid.NewString(), media.ExtensionFor(mimetype))
	obj := p.offload(ctx, sessionName, data, mimetype, key)

	res, err := h.SendVoice(ctx, to, data, mimetype)
	if err != nil {
		p.discard(ctx, sessionName, obj)
		return nil, domain.NewDriverError("send voice", sessionName, err)
	}

	msg := p.outbound(sessionName, res, "", domain.TypeAudio, objectURL(obj), mimetype)
	p.record(ctx, msg)
	return msg, nil
}

// SendLocation sends a geographic location.
func (p *Pipeline) SendLocation(ctx context.Context, sessionName, to string, loc driver.Location) (*domain.Message, error) {
	h, ok := p.registry.Lookup(sessionName)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	res, err := h.SendLocation(ctx, to, loc)
	if err != nil {
		return nil, domain.NewDriverError("send location", sessionName, err)
	}

	msg := p.outbound(sessionName, res, loc.Name, domain.TypeLocation, "", "")
	msg.Metadata = map[string]string{
		"latitude":  fmt.Sprintf("%f", loc.Latitude),
		"longitude": fmt.Sprintf("%f", loc.Longitude),
	}
	p.record(ctx, msg)
	return msg, nil
}

// offload uploads outbound media to the store for history. Failures
// degrade to a message without a media URL.
func (p *Pipeline) offload(ctx context.Context, sessionName string, data []byte, mimetype, key string) *media.Object {
	if p.media == nil {
		return nil
	}
	obj, err := p.media.Upload(ctx, data, mimetype, key)
	if err != nil {
		slog.Warn("Failed to offload outbound media, sending without stored copy",
			"session", sessionName, "key", key, "error", err)
		return nil
	}
	return obj
}

// discard removes a media object uploaded for a send that then failed.
// Best effort: an orphaned object is preferable to masking the send error.
func (p *Pipeline) discard(ctx context.Context, sessionName string, obj *media.Object) {
	if obj == nil || p.media == nil {
		return
	}
	if err := p.media.Delete(ctx, obj.Key); err != nil {
		slog.Warn("Failed to delete media for failed send",
			"session", sessionName, "key", obj.Key, "error", err)
	}
}

// sanitizeFilename reduces a caller-supplied filename to a single path
// element so object keys always stay under the session's prefix.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return uuid.NewString()
	}
	return name
}

func objectURL(obj *media.Object) string {
	if obj == nil {
		return ""
	}
	return obj.URL
}

func (p *Pipeline) outbound(sessionName string, res *driver.SendResult, body string, msgType domain.MessageType, mediaURL, mimetype string) *domain.Message {
	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &domain.Message{
		SessionName: sessionName,
		MessageID:   res.ID,
		From:        res.From,
		To:          res.To,
		Body:        body,
		Type:        msgType,
		MediaURL:    mediaURL,
		Mimetype:    mimetype,
		IsFromMe:    true,
		Timestamp:   ts,
		Status:      domain.MessageSent,
	}
}

// record persists an outbound mirror. The platform already accepted
// the send, so a store failure here is logged rather than returned.
func (p *Pipeline) record(ctx context.Context, msg *domain.Message) {
	if err := p.repo.InsertMessage(ctx, msg); err != nil {
		slog.Error("Failed to persist outbound message",
			"session", msg.SessionName, "message_id", msg.MessageID, "error", err)
	}
}
