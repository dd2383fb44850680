package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
	"github.com/adrianoneco/wpp-api/internal/store"
)

// Ingestor consumes inbound driver messages. Implemented by the
// message pipeline; kept as an interface so the controller never
// depends on pipeline internals.
type Ingestor interface {
	Ingest(ctx context.Context, sessionName string, h driver.Handle, msg *driver.InboundMessage) error
}

// Notifier receives session record updates for realtime streaming.
type Notifier interface {
	PublishSessionUpdate(sess *domain.Session)
}

// Controller owns session state transitions. It wires driver callbacks
// onto per-session ordered workers, persists every status change and
// keeps the registry consistent with the driver's actual connections.
type Controller struct {
	registry *Registry
	repo     store.Repository
	drivers  driver.Factory
	provider string
	dataDir  string

	ingest   Ingestor
	notifier Notifier

	mu      sync.Mutex
	workers map[string]*worker
}

// NewController creates a session lifecycle controller. provider is the
// device-name prefix announced to the platform; dataDir is where driver
// credentials live.
func NewController(registry *Registry, repo store.Repository, drivers driver.Factory, provider, dataDir string) *Controller {
	return &Controller{
		registry: registry,
		repo:     repo,
		drivers:  drivers,
		provider: provider,
		dataDir:  dataDir,
		workers:  make(map[string]*worker),
	}
}

// SetIngestor wires the inbound message consumer.
func (c *Controller) SetIngestor(in Ingestor) { c.ingest = in }

// SetNotifier wires the realtime update sink.
func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

// Initialize creates and registers a driver session for name.
// Idempotent: an already registered session returns success with no
// side effects. The handle is registered before authentication
// completes so a concurrent Close can still act on it.
func (c *Controller) Initialize(ctx context.Context, name string) error {
	mu := c.registry.MutexFor(name)
	mu.Lock()
	defer mu.Unlock()

	if _, ok := c.registry.Lookup(name); ok {
		slog.Info("Session already active", "session", name)
		return nil
	}

	if err := c.persist(ctx, name, domain.StatusConnecting, nil); err != nil {
		slog.Error("Failed to persist connecting status", "session", name, "error", err)
	}

	lastIdentity := ""
	if sess, err := c.repo.GetSession(ctx, name); err == nil && sess != nil {
		lastIdentity = sess.PhoneNumber
	}

	w := c.workerFor(name)
	cb := driver.Callbacks{
		OnQR: func(image, payload string, attempt int) {
			w.enqueue("qr", func() error {
				return c.handleQR(context.Background(), name, image, payload, attempt)
			})
		},
		OnStatus: func(rawStatus string) {
			w.enqueue("status", func() error {
				return c.handleStatus(context.Background(), name, rawStatus)
			})
		},
	}

	deviceName := strings.ToUpper(fmt.Sprintf("%s_%s", c.provider, name))
	h, err := c.drivers.Create(ctx, driver.Config{
		Session:    name,
		DeviceName: deviceName,
		DataDir:    c.dataDir,
		Identity:   lastIdentity,
	}, cb)
	if err != nil {
		c.stopWorker(name)
		reason := err.Error()
		if perr := c.persist(ctx, name, domain.StatusError, func(s *domain.Session) {
			s.Error = reason
		}); perr != nil {
			slog.Error("Failed to persist error status", "session", name, "error", perr)
		}
		return domain.NewDriverError("create", name, err)
	}

	if err := c.registry.Register(name, h); err != nil {
		// Unreachable while the per-name lock is held; never leave a
		// handle half-registered.
		if closeErr := h.Close(); closeErr != nil {
			slog.Warn("Failed to close duplicate handle", "session", name, "error", closeErr)
		}
		c.stopWorker(name)
		return err
	}

	h.OnMessage(func(msg *driver.InboundMessage) {
		if c.ingest == nil {
			return
		}
		w.enqueue("message", func() error {
			return c.ingest.Ingest(context.Background(), name, h, msg)
		})
	})
	h.OnStateChange(func(rawState string) {
		w.enqueue("state", func() error {
			return c.handleStateChange(context.Background(), name, rawState)
		})
	})

	// Already-paired accounts skip the QR dance entirely. The write
	// goes through the worker so it cannot interleave with driver
	// events persisting for the same session.
	if id, idErr := h.Identity(ctx); idErr == nil && id != "" {
		w.enqueue("status", func() error {
			now := time.Now()
			return c.persist(context.Background(), name, domain.StatusAuthenticated, func(s *domain.Session) {
				s.PhoneNumber = id
				s.LastConnectedAt = &now
			})
		})
	} else {
		slog.Info("Session waiting for authentication", "session", name)
	}

	slog.Info("Session initialized", "session", name, "device_name", deviceName)
	return nil
}

// Close disconnects the session and unregisters its handle. A close
// without a registered handle still succeeds and normalizes the
// persisted status to disconnected.
func (c *Controller) Close(ctx context.Context, name string) error {
	mu := c.registry.MutexFor(name)
	mu.Lock()
	defer mu.Unlock()

	return c.closeLocked(ctx, name)
}

func (c *Controller) closeLocked(ctx context.Context, name string) error {
	if h, ok := c.registry.Lookup(name); ok {
		if err := h.Close(); err != nil {
			slog.Error("Driver close failed", "session", name, "error", err)
		}
		c.registry.Unregister(name)
		slog.Info("Session closed", "session", name)
	}
	// The worker may exist without a handle, e.g. after a failed
	// initialize; always reap it.
	c.stopWorker(name)
	return c.persist(ctx, name, domain.StatusDisconnected, nil)
}

// Logout disconnects the session, discards the account pairing and
// deletes the session record entirely. This is the "forget this
// device" path, distinct from Close which keeps credentials.
func (c *Controller) Logout(ctx context.Context, name string) error {
	mu := c.registry.MutexFor(name)
	mu.Lock()
	defer mu.Unlock()

	if h, ok := c.registry.Lookup(name); ok {
		if err := h.Logout(ctx); err != nil {
			slog.Warn("Driver logout failed", "session", name, "error", err)
		}
	}
	if err := c.closeLocked(ctx, name); err != nil {
		return err
	}
	if err := c.repo.DeleteSession(ctx, name); err != nil {
		return domain.NewStoreError("delete session", err)
	}
	slog.Info("Session logged out", "session", name)
	return nil
}

// CloseAll closes every registered session. Called on shutdown so no
// driver resource outlives the process.
func (c *Controller) CloseAll(ctx context.Context) {
	for _, name := range c.registry.Names() {
		if err := c.Close(ctx, name); err != nil {
			slog.Error("Failed to close session during shutdown", "session", name, "error", err)
		}
	}
}

func (c *Controller) handleQR(ctx context.Context, name, image, payload string, attempt int) error {
	slog.Info("QR code received", "session", name, "attempt", attempt)
	return c.persist(ctx, name, domain.StatusQRCode, func(s *domain.Session) {
		s.QRImage = image
		s.QRPayload = payload
	})
}

func (c *Controller) handleStatus(ctx context.Context, name, rawStatus string) error {
	mapped := domain.MapDriverStatus(rawStatus)
	slog.Info("Session status", "session", name, "raw", rawStatus, "status", mapped)

	return c.persist(ctx, name, mapped, func(s *domain.Session) {
		switch mapped {
		case domain.StatusConnected:
			now := time.Now()
			s.LastConnectedAt = &now
			c.fillPhoneNumber(ctx, name, s)
		case domain.StatusAuthenticated:
			c.fillPhoneNumber(ctx, name, s)
		case domain.StatusError:
			s.Error = "driver status: " + rawStatus
		}
	})
}

func (c *Controller) handleStateChange(ctx context.Context, name, rawState string) error {
	slog.Info("Session state changed", "session", name, "state", rawState)

	switch {
	case rawState == domain.StateConnected:
		return c.persist(ctx, name, domain.StatusConnected, func(s *domain.Session) {
			now := time.Now()
			s.LastConnectedAt = &now
			c.fillPhoneNumber(ctx, name, s)
		})
	case domain.IsConflictState(rawState):
		// Handle stays registered; recovery needs an explicit initialize.
		return c.persist(ctx, name, domain.StatusDisconnected, nil)
	default:
		return nil
	}
}

// fillPhoneNumber completes the session's platform address from the
// live handle when it is not known yet. Best effort.
func (c *Controller) fillPhoneNumber(ctx context.Context, name string, s *domain.Session) {
	if s.PhoneNumber != "" {
		return
	}
	h, ok := c.registry.Lookup(name)
	if !ok {
		return
	}
	if id, err := h.Identity(ctx); err == nil && id != "" {
		s.PhoneNumber = id
	}
}

// persist applies a status transition to the session record. QR
// artifacts are retained only while the status is qr_code; every
// transition to another status clears both image and payload.
// Structurally impossible transitions are logged and ignored.
func (c *Controller) persist(ctx context.Context, name string, to domain.SessionStatus, mutate func(*domain.Session)) error {
	cur, err := c.repo.GetSession(ctx, name)
	if err != nil {
		return domain.NewStoreError("get session", err)
	}

	sess := &domain.Session{Name: name, Status: domain.StatusDisconnected}
	if cur != nil {
		sess = cur
	}

	if !domain.CanTransition(sess.Status, to) {
		slog.Warn("Ignoring impossible status transition",
			"session", name, "from", sess.Status, "to", to)
		return nil
	}

	sess.Status = to
	if to != domain.StatusQRCode {
		sess.QRImage = ""
		sess.QRPayload = ""
	}
	if to != domain.StatusError {
		sess.Error = ""
	}
	if mutate != nil {
		mutate(sess)
	}

	if err := c.repo.UpsertSession(ctx, sess); err != nil {
		return domain.NewStoreError("upsert session", err)
	}
	if c.notifier != nil {
		c.notifier.PublishSessionUpdate(sess)
	}
	return nil
}

func (c *Controller) workerFor(name string) *worker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.workers[name]; ok {
		return w
	}
	w := newWorker(name)
	c.workers[name] = w
	return w
}

func (c *Controller) stopWorker(name string) {
	c.mu.Lock()
	w, ok := c.workers[name]
	delete(c.workers, name)
	c.mu.Unlock()

	if ok {
		w.stop()
	}
}
