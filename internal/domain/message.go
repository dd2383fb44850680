package domain

import (
	"time"
)

// MessageType classifies the content of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
	TypeUnknown  MessageType = "unknown"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Message is one inbound or outbound communication event. MessageID is
// globally unique and acts as the natural idempotency key: redelivery
// of the same inbound event must not create a duplicate record.
type Message struct {
	SessionName string            `json:"session_name"`
	MessageID   string            `json:"message_id"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Body        string            `json:"body"`
	Type        MessageType       `json:"type"`
	MediaURL    string            `json:"media_url,omitempty"`
	Mimetype    string            `json:"mimetype,omitempty"`
	IsFromMe    bool              `json:"is_from_me"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      MessageStatus     `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
