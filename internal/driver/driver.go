// Package driver defines the contract consumed from the external
// chat-platform automation driver. The driver owns the platform's wire
// protocol; this package only shapes what the core needs from it.
package driver

import (
	"context"
	"time"
)

// Callbacks receives connection lifecycle events for one session while
// it is being created and afterwards. Implementations must tolerate a
// callback failing without stopping delivery of later events.
type Callbacks struct {
	// OnQR delivers a freshly rendered pairing QR code. image is a
	// base64 PNG data URL, payload the raw string the code encodes.
	OnQR func(image, payload string, attempt int)

	// OnStatus delivers the driver's native status vocabulary
	// (e.g. "isLogged", "notLogged", "qrReadSuccess").
	OnStatus func(rawStatus string)
}

// Config carries per-session creation settings.
type Config struct {
	// Session is the unique session name.
	Session string

	// DeviceName is the identity announced to the chat platform.
	DeviceName string

	// DataDir is where the driver keeps credentials and state.
	DataDir string

	// Identity is the last known platform address of the account, if
	// any. Lets the driver resume an existing pairing instead of
	// starting a fresh QR handshake.
	Identity string
}

// SendResult describes a message accepted by the platform.
type SendResult struct {
	ID        string
	From      string
	To        string
	Timestamp time.Time
}

// InboundMessage is one event delivered by the driver for a message
// received (or echoed) on the platform.
type InboundMessage struct {
	ID            string
	From          string
	To            string
	Body          string
	Caption       string
	Mimetype      string
	Filename      string
	IsMedia       bool
	IsSticker     bool
	IsContactCard bool
	HasLocation   bool
	IsFromMe      bool
	Timestamp     time.Time
	SenderName    string

	// mediaRef is the driver-private reference needed to decrypt and
	// download the attachment, if any.
	MediaRef interface{}
}

// Location is a geographic point for location sends.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Handle is the live connection for one session. A handle is owned by
// exactly one registry entry and lives from successful Create until
// Close or process exit.
type Handle interface {
	// OnMessage registers the inbound message callback.
	OnMessage(fn func(msg *InboundMessage))

	// OnStateChange registers the secondary connection-state callback
	// (raw states such as "CONNECTED", "CONFLICT", "UNPAIRED").
	OnStateChange(fn func(rawState string))

	// Identity returns the platform address of the authenticated
	// account, or an error while unauthenticated.
	Identity(ctx context.Context) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) (*SendResult, error)

	// SendImage sends an image with an optional caption.
	SendImage(ctx context.Context, to string, data []byte, mimetype, caption string) (*SendResult, error)

	// SendFile sends an arbitrary document.
	SendFile(ctx context.Context, to string, data []byte, filename, mimetype, caption string) (*SendResult, error)

	// SendVoice sends an audio payload as a voice note.
	SendVoice(ctx context.Context, to string, data []byte, mimetype string) (*SendResult, error)

	// SendLocation sends a geographic location.
	SendLocation(ctx context.Context, to string, loc Location) (*SendResult, error)

	// DecryptMedia downloads and decrypts the attachment of msg.
	DecryptMedia(ctx context.Context, msg *InboundMessage) ([]byte, error)

	// Close disconnects the session, releasing the driver resource.
	// Credentials are kept so a later create can resume the account.
	Close() error

	// Logout disconnects and discards the account pairing.
	Logout(ctx context.Context) error
}

// Factory opens driver sessions. Create returns an error when the
// underlying automation resource cannot be started; the handle is
// usable (for Close and callbacks) before authentication completes.
type Factory interface {
	Create(ctx context.Context, cfg Config, cb Callbacks) (Handle, error)
}
