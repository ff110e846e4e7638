package lockfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryAcquire_SecondHolderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := TryAcquire(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := TryAcquire(path); !errors.Is(err, ErrHeld) {
		t.Errorf("second acquire err = %v, want ErrHeld", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}

	again, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	again.Release() //nolint:errcheck
}
