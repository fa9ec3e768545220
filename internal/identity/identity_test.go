package identity

import (
	"sync"
	"testing"
)

func TestHolder(t *testing.T) {
	h := New("inst-1", "u-1")
	if h.InstallationID() != "inst-1" {
		t.Errorf("installation id = %q", h.InstallationID())
	}
	if h.UserID() != "u-1" {
		t.Errorf("user id = %q", h.UserID())
	}
	h.SetUserID("u-2")
	if h.UserID() != "u-2" {
		t.Errorf("user id after change = %q", h.UserID())
	}
}

func TestHolderDerivesInstallationID(t *testing.T) {
	h := New("", "")
	if len(h.InstallationID()) != 32 {
		t.Errorf("derived installation id = %q, want 32 hex chars", h.InstallationID())
	}
	if h.InstallationID() != HostInstallationID() {
		t.Error("host installation id is not stable")
	}
}

func TestHolderConcurrentAccess(t *testing.T) {
	h := New("inst", "")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.SetUserID("u")
		}()
		go func() {
			defer wg.Done()
			_ = h.UserID()
		}()
	}
	wg.Wait()
}
