package wameow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

const qrImageSize = 256

type handle struct {
	session string
	client  *whatsmeow.Client
	cb      driver.Callbacks

	mu        sync.RWMutex
	onMessage func(msg *driver.InboundMessage)
	onState   func(rawState string)
}

func (h *handle) OnMessage(fn func(msg *driver.InboundMessage)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

func (h *handle) OnStateChange(fn func(rawState string)) {
	h.mu.Lock()
	h.onState = fn
	h.mu.Unlock()
}

// watchQR renders each pairing code to a PNG data URL and forwards it.
// The channel closes once pairing succeeds, fails or times out.
func (h *handle) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	attempt := 0
	for item := range ch {
		switch item.Event {
		case "code":
			attempt++
			png, err := qrcode.Encode(item.Code, qrcode.Medium, qrImageSize)
			if err != nil {
				continue
			}
			image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
			if h.cb.OnQR != nil {
				h.cb.OnQR(image, item.Code, attempt)
			}
		case "success":
			h.emitStatus("qrReadSuccess")
		case "timeout":
			h.emitStatus("qrReadFail")
		default:
			if item.Error != nil {
				h.emitStatus("qrReadError")
			}
		}
	}
}

func (h *handle) emitStatus(raw string) {
	if h.cb.OnStatus != nil {
		h.cb.OnStatus(raw)
	}
}

func (h *handle) emitState(raw string) {
	h.mu.RLock()
	fn := h.onState
	h.mu.RUnlock()
	if fn != nil {
		fn(raw)
	}
}

func (h *handle) dispatchEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		h.emitStatus("isLogged")
		h.emitState(domain.StateConnected)
	case *events.Disconnected:
		h.emitStatus("notLogged")
	case *events.StreamReplaced:
		h.emitState(domain.StateConflict)
	case *events.LoggedOut:
		h.emitState(domain.StateUnpaired)
	case *events.Message:
		h.dispatchMessage(e)
	}
}

func (h *handle) dispatchMessage(evt *events.Message) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()
	if fn == nil {
		return
	}

	msg := &driver.InboundMessage{
		ID:         evt.Info.ID,
		From:       evt.Info.Sender.ToNonAD().String(),
		To:         evt.Info.Chat.ToNonAD().String(),
		IsFromMe:   evt.Info.IsFromMe,
		Timestamp:  evt.Info.Timestamp,
		SenderName: evt.Info.PushName,
	}

	content := evt.Message
	switch {
	case content.GetConversation() != "":
		msg.Body = content.GetConversation()
	case content.GetExtendedTextMessage() != nil:
		msg.Body = content.GetExtendedTextMessage().GetText()
	case content.GetImageMessage() != nil:
		m := content.GetImageMessage()
		msg.IsMedia = true
		msg.Mimetype = m.GetMimetype()
		msg.Caption = m.GetCaption()
		msg.MediaRef = m
	case content.GetVideoMessage() != nil:
		m := content.GetVideoMessage()
		msg.IsMedia = true
		msg.Mimetype = m.GetMimetype()
		msg.Caption = m.GetCaption()
		msg.MediaRef = m
	case content.GetAudioMessage() != nil:
		m := content.GetAudioMessage()
		msg.IsMedia = true
		msg.Mimetype = m.GetMimetype()
		msg.MediaRef = m
	case content.GetDocumentMessage() != nil:
		m := content.GetDocumentMessage()
		msg.IsMedia = true
		msg.Mimetype = m.GetMimetype()
		msg.Caption = m.GetCaption()
		msg.Filename = m.GetFileName()
		msg.MediaRef = m
	case content.GetStickerMessage() != nil:
		m := content.GetStickerMessage()
		msg.IsMedia = true
		msg.IsSticker = true
		msg.Mimetype = m.GetMimetype()
		msg.MediaRef = m
	case content.GetLocationMessage() != nil:
		m := content.GetLocationMessage()
		msg.HasLocation = true
		msg.Body = fmt.Sprintf("%f,%f", m.GetDegreesLatitude(), m.GetDegreesLongitude())
	case content.GetContactMessage() != nil:
		msg.IsContactCard = true
		msg.Body = content.GetContactMessage().GetDisplayName()
	}

	fn(msg)
}

func (h *handle) Identity(ctx context.Context) (string, error) {
	id := h.client.Store.ID
	if id == nil {
		return "", errors.New("session not authenticated")
	}
	return id.ToNonAD().String(), nil
}

// recipientJID normalizes a destination into a platform address.
// Bare numbers become user JIDs on the default server.
func recipientJID(to string) (types.JID, error) {
	if strings.ContainsRune(to, '@') {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("parse recipient %q: %w", to, err)
		}
		return jid, nil
	}
	return types.NewJID(to, types.DefaultUserServer), nil
}

func (h *handle) send(ctx context.Context, to string, content *waE2E.Message) (*driver.SendResult, error) {
	jid, err := recipientJID(to)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.SendMessage(ctx, jid, content)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	from := ""
	if id := h.client.Store.ID; id != nil {
		from = id.ToNonAD().String()
	}
	return &driver.SendResult{
		ID:        resp.ID,
		From:      from,
		To:        jid.String(),
		Timestamp: resp.Timestamp,
	}, nil
}

func (h *handle) SendText(ctx context.Context, to, body string) (*driver.SendResult, error) {
	return h.send(ctx, to, &waE2E.Message{Conversation: proto.String(body)})
}

func (h *handle) SendImage(ctx context.Context, to string, data []byte, mimetype, caption string) (*driver.SendResult, error) {
	uploaded, err := h.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return h.send(ctx, to, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(caption),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
		},
	})
}

func (h *handle) SendFile(ctx context.Context, to string, data []byte, filename, mimetype, caption string) (*driver.SendResult, error) {
	uploaded, err := h.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	return h.send(ctx, to, &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(caption),
			FileName:      proto.String(filename),
			Title:         proto.String(filename),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
		},
	})
}

func (h *handle) SendVoice(ctx context.Context, to string, data []byte, mimetype string) (*driver.SendResult, error) {
	uploaded, err := h.client.Upload(ctx, data, whatsmeow.MediaAudio)
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}
	return h.send(ctx, to, &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimetype),
			PTT:           proto.Bool(true),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
		},
	})
}

func (h *handle) SendLocation(ctx context.Context, to string, loc driver.Location) (*driver.SendResult, error) {
	return h.send(ctx, to, &waE2E.Message{
		LocationMessage: &waE2E.LocationMessage{
			DegreesLatitude:  proto.Float64(loc.Latitude),
			DegreesLongitude: proto.Float64(loc.Longitude),
			Name:             proto.String(loc.Name),
		},
	})
}

func (h *handle) DecryptMedia(ctx context.Context, msg *driver.InboundMessage) ([]byte, error) {
	downloadable, ok := msg.MediaRef.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, errors.New("message carries no downloadable media")
	}
	data, err := h.client.Download(ctx, downloadable)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

func (h *handle) Close() error {
	h.client.Disconnect()
	return nil
}

func (h *handle) Logout(ctx context.Context) error {
	if err := h.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
