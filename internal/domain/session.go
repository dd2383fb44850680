// Package domain contains core domain types for the wpp-api application.
package domain

import (
	"time"
)

// SessionStatus is the persisted connection state of a chat-platform account.
type SessionStatus string

const (
	StatusDisconnected  SessionStatus = "disconnected"
	StatusConnecting    SessionStatus = "connecting"
	StatusQRCode        SessionStatus = "qr_code"
	StatusAuthenticated SessionStatus = "authenticated"
	StatusConnected     SessionStatus = "connected"
	StatusError         SessionStatus = "error"
)

// Session represents one chat-platform account and its last-known
// connection state. The in-memory driver handle is tracked separately
// by the session registry and is never persisted.
type Session struct {
	Name            string            `json:"name"`
	Status          SessionStatus     `json:"status"`
	PhoneNumber     string            `json:"phone_number,omitempty"`
	QRImage         string            `json:"qr_image,omitempty"`
	QRPayload       string            `json:"qr_payload,omitempty"`
	Error           string            `json:"error,omitempty"`
	LastConnectedAt *time.Time        `json:"last_connected_at,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsLive returns true if the session is in a state where the driver
// connection is expected to be usable.
func (s *Session) IsLive() bool {
	return s.Status == StatusConnected || s.Status == StatusAuthenticated
}

// validTransitions lists the structurally possible status changes.
// Terminal-but-resumable states (disconnected, error) only leave via a
// fresh initialize, which re-enters connecting.
var validTransitions = map[SessionStatus][]SessionStatus{
	StatusDisconnected:  {StatusConnecting, StatusDisconnected, StatusError},
	StatusConnecting:    {StatusConnecting, StatusQRCode, StatusAuthenticated, StatusConnected, StatusDisconnected, StatusError},
	StatusQRCode:        {StatusQRCode, StatusConnecting, StatusAuthenticated, StatusConnected, StatusDisconnected, StatusError},
	StatusAuthenticated: {StatusAuthenticated, StatusConnecting, StatusConnected, StatusDisconnected, StatusError},
	StatusConnected:     {StatusConnected, StatusConnecting, StatusDisconnected, StatusError},
	StatusError:         {StatusConnecting, StatusError, StatusDisconnected},
}

// CanTransition reports whether moving from one session status to
// another is structurally possible. An unknown current status only
// permits re-entry through connecting.
func CanTransition(from, to SessionStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return to == StatusConnecting
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// MapDriverStatus translates the driver's native status vocabulary into
// a SessionStatus. The mapping is total: every input maps to exactly
// one status and unknown values fall back to connecting.
func MapDriverStatus(raw string) SessionStatus {
	switch raw {
	case "isLogged", "inChat", "successChat":
		return StatusConnected
	case "qrReadSuccess":
		return StatusAuthenticated
	case "notLogged", "browserClose", "autocloseCalled", "desconnectedMobile", "serverClose":
		return StatusDisconnected
	case "qrReadFail", "qrReadError":
		return StatusError
	default:
		return StatusConnecting
	}
}

// Raw connection states delivered on the driver's secondary state
// channel. Conflict-class states force a disconnect without releasing
// the registered handle.
const (
	StateConnected  = "CONNECTED"
	StateConflict   = "CONFLICT"
	StateUnpaired   = "UNPAIRED"
	StateUnlaunched = "UNLAUNCHED"
)

// IsConflictState reports whether a raw state change indicates the
// account was taken over, unpaired or never launched.
func IsConflictState(raw string) bool {
	return raw == StateConflict || raw == StateUnpaired || raw == StateUnlaunched
}
