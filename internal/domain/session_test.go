package domain

import "testing"

func TestMapDriverStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want SessionStatus
	}{
		{"isLogged", StatusConnected},
		{"inChat", StatusConnected},
		{"successChat", StatusConnected},
		{"qrReadSuccess", StatusAuthenticated},
		{"notLogged", StatusDisconnected},
		{"browserClose", StatusDisconnected},
		{"autocloseCalled", StatusDisconnected},
		{"desconnectedMobile", StatusDisconnected},
		{"serverClose", StatusDisconnected},
		{"qrReadFail", StatusError},
		{"qrReadError", StatusError},
		{"deviceNotConnected", StatusConnecting},
		{"", StatusConnecting},
		{"something-new", StatusConnecting},
	}

	for _, tt := range tests {
		if got := MapDriverStatus(tt.raw); got != tt.want {
			t.Errorf("MapDriverStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{"disconnected to connecting", StatusDisconnected, StatusConnecting, true},
		{"disconnected to connected is impossible", StatusDisconnected, StatusConnected, false},
		{"connecting to qr code", StatusConnecting, StatusQRCode, true},
		{"qr code to authenticated", StatusQRCode, StatusAuthenticated, true},
		{"authenticated to connected", StatusAuthenticated, StatusConnected, true},
		{"connected to disconnected", StatusConnected, StatusDisconnected, true},
		{"error recovers only through connecting", StatusError, StatusConnecting, true},
		{"error to connected is impossible", StatusError, StatusConnected, false},
		{"error to qr code is impossible", StatusError, StatusQRCode, false},
		{"self transition connected", StatusConnected, StatusConnected, true},
		{"unknown status enters through connecting", SessionStatus("bogus"), StatusConnecting, true},
		{"unknown status cannot jump to connected", SessionStatus("bogus"), StatusConnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsConflictState(t *testing.T) {
	for _, raw := range []string{StateConflict, StateUnpaired, StateUnlaunched} {
		if !IsConflictState(raw) {
			t.Errorf("IsConflictState(%q) = false, want true", raw)
		}
	}
	if IsConflictState(StateConnected) {
		t.Error("IsConflictState(CONNECTED) = true, want false")
	}
	if IsConflictState("") {
		t.Error("IsConflictState(\"\") = true, want false")
	}
}

func TestIsLive(t *testing.T) {
	live := []SessionStatus{StatusConnected, StatusAuthenticated}
	for _, st := range live {
		s := &Session{Status: st}
		if !s.IsLive() {
			t.Errorf("IsLive() = false for status %q", st)
		}
	}
	for _, st := range []SessionStatus{StatusDisconnected, StatusConnecting, StatusQRCode, StatusError} {
		s := &Session{Status: st}
		if s.IsLive() {
			t.Errorf("IsLive() = true for status %q", st)
		}
	}
}
