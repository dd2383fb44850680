package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
)

// stubHandle is the minimal Handle for registry tests.
type stubHandle struct {
	closed bool
}

func (h *stubHandle) OnMessage(func(msg *driver.InboundMessage)) {}
func (h *stubHandle) OnStateChange(func(rawState string))        {}
func (h *stubHandle) Identity(context.Context) (string, error)   { return "", errors.New("unauthenticated") }
func (h *stubHandle) SendText(context.Context, string, string) (*driver.SendResult, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) SendImage(context.Context, string, []byte, string, string) (*driver.SendResult, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) SendFile(context.Context, string, []byte, string, string, string) (*driver.SendResult, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) SendVoice(context.Context, string, []byte, string) (*driver.SendResult, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) SendLocation(context.Context, string, driver.Location) (*driver.SendResult, error) {
	return nil, errors.New("not implemented")
}
func (h *stubHandle) DecryptMedia(context.Context, *driver.InboundMessage) ([]byte, error) {
	return nil, errors.New("no media")
}
func (h *stubHandle) Close() error { h.closed = true; return nil }
func (h *stubHandle) Logout(context.Context) error {
	return nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	h := &stubHandle{}

	if err := r.Register("alice", h); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Lookup("alice")
	if !ok {
		t.Fatal("Lookup did not find registered session")
	}
	if got != h {
		t.Error("Lookup returned a different handle")
	}

	if _, ok := r.Lookup("bob"); ok {
		t.Error("Lookup found a session that was never registered")
	}
}

func TestRegistryDuplicateRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("alice", &stubHandle{}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := r.Register("alice", &stubHandle{})
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Errorf("second Register error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("alice", &stubHandle{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Unregister("alice")
	if _, ok := r.Lookup("alice"); ok {
		t.Error("session still registered after Unregister")
	}

	// A second unregister and unknown names are no-ops.
	r.Unregister("alice")
	r.Unregister("never-existed")
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(name, &stubHandle{}); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	names := r.Names()
	if len(names) != 3 {
		t.Fatalf("Names() returned %d entries, want 3", len(names))
	}
	seen := make(map[string]bool)
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !seen[want] {
			t.Errorf("Names() missing %q", want)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("session-%d", i)
			if err := r.Register(name, &stubHandle{}); err != nil {
				t.Errorf("Register(%q) failed: %v", name, err)
				return
			}
			if _, ok := r.Lookup(name); !ok {
				t.Errorf("Lookup(%q) failed right after Register", name)
			}
			r.Unregister(name)
		}(i)
	}
	wg.Wait()

	if got := len(r.Names()); got != 0 {
		t.Errorf("registry has %d leftover entries, want 0", got)
	}
}

func TestRegistryMutexForIsStable(t *testing.T) {
	r := NewRegistry()
	m1 := r.MutexFor("alice")
	m2 := r.MutexFor("alice")
	if m1 != m2 {
		t.Error("MutexFor returned different mutexes for the same name")
	}
	if r.MutexFor("bob") == m1 {
		t.Error("MutexFor returned the same mutex for different names")
	}
}
