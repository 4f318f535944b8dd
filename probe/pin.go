package probe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rjeczalik/notify"
)

// WaitForPin blocks until something shows up at path or done is closed, in
// which case ErrSourceClosed is returned. The directory holding path must
// already exist.
func WaitForPin(done <-chan struct{}, path string) error {
	dir := filepath.Dir(path)

	c := make(chan notify.EventInfo, 1)
	if err := notify.Watch(dir, c, notify.Create); err != nil {
		return fmt.Errorf("error watching %s: %w", dir, err)
	}
	defer notify.Stop(c)

	// The pin may have appeared before the watch was set up.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	logger.Info("waiting for the ring buffer to be pinned", "path", path)
	for {
		select {
		case ei := <-c:
			if filepath.Base(ei.Path()) == filepath.Base(path) {
				logger.Debug("ring buffer pinned", "path", path)
				return nil
			}
		case <-done:
			return ErrSourceClosed
		}
	}
}
