// Package wameow implements the automation driver contract on top of
// go.mau.fi/whatsmeow, connecting directly to WhatsApp's multidevice
// protocol instead of steering a browser.
package wameow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrianoneco/wpp-api/internal/driver"
	_ "github.com/mattn/go-sqlite3" // sqlite driver for the whatsmeow credential store
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Factory opens whatsmeow-backed driver sessions. All sessions share
// one credential container; each session maps to one stored device.
type Factory struct {
	container *sqlstore.Container
}

// NewFactory opens the shared credential store under dataDir.
func NewFactory(ctx context.Context, dataDir string) (*Factory, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create driver data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "credentials.db")
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", waLog.Stdout("Database", "WARN", false))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	return &Factory{container: container}, nil
}

// Create opens a session. A session with a stored pairing reconnects
// silently; a fresh one starts the QR handshake and reports codes
// through the callbacks.
func (f *Factory) Create(ctx context.Context, cfg driver.Config, cb driver.Callbacks) (driver.Handle, error) {
	deviceStore, err := f.deviceFor(ctx, cfg.Identity)
	if err != nil {
		return nil, err
	}

	store.DeviceProps.Os = proto.String(cfg.DeviceName)
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "WARN", false))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true

	h := &handle{
		session: cfg.Session,
		client:  client,
		cb:      cb,
	}
	client.AddEventHandler(h.dispatchEvent)

	if client.Store.ID == nil {
		// The QR channel must be requested before connecting. It keeps
		// delivering codes after the creation request returns, so it
		// gets a background context.
		qrChan, qrErr := client.GetQRChannel(context.Background())
		if qrErr != nil {
			return nil, fmt.Errorf("request qr channel: %w", qrErr)
		}
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		go h.watchQR(qrChan)
	} else {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	return h, nil
}

// deviceFor resolves the stored device for a known identity, or
// allocates a fresh one for a new pairing.
func (f *Factory) deviceFor(ctx context.Context, identity string) (*store.Device, error) {
	if identity == "" {
		return f.container.NewDevice(), nil
	}

	jid, err := types.ParseJID(identity)
	if err != nil {
		return f.container.NewDevice(), nil
	}
	device, err := f.container.GetDevice(ctx, jid)
	if err != nil || device == nil {
		return f.container.NewDevice(), nil
	}
	return device, nil
}

// Close releases the shared credential store.
func (f *Factory) Close() error {
	return f.container.Close()
}
