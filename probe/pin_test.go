package probe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitForPin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events")

	errC := make(chan error)
	go func() { errC <- WaitForPin(make(chan struct{}), path) }()

	// Create unrelated files until the watch is surely up, then the pin.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other"), nil, 0o600); err != nil {
		t.Fatalf("error creating a file: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("error creating the pin: %v", err)
	}

	select {
	case err := <-errC:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("the pin wasn't noticed")
	}
}

func TestWaitForPinExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("error creating the pin: %v", err)
	}

	if err := WaitForPin(make(chan struct{}), path); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitForPinDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	err := WaitForPin(done, filepath.Join(t.TempDir(), "events"))
	if !errors.Is(err, ErrSourceClosed) {
		t.Errorf("got error %v, want %v", err, ErrSourceClosed)
	}
}
