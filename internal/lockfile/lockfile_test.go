package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock error: %v", err)
	}

	lockPath := filepath.Join(stateDir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file unreadable: %v", err)
	}
	if !strings.Contains(string(data), fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Errorf("lock file missing pid record: %q", string(data))
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file not removed on release")
	}

	// Release is idempotent.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release error: %v", err)
	}
}

func TestAcquireLockConflict(t *testing.T) {
	stateDir := t.TempDir()

	first, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("first AcquireLock error: %v", err)
	}
	defer first.Release()

	_, err = AcquireLock(stateDir)
	if err == nil {
		t.Fatal("expected second acquisition to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T: %v", err, err)
	}
	if !strings.Contains(lockErr.Error(), LockFileName) {
		t.Errorf("error should name the lock file: %v", lockErr)
	}

	// The directory is usable again after release.
	if err := first.Release(); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	third, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	third.Release()
}

func TestAcquireLockCreatesStateDir(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock error: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(stateDir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestExtractPID(t *testing.T) {
	tests := []struct {
		content  string
		expected int
	}{
		{"pid=1234\n", 1234},
		{"pid=1", 1},
		{"garbage", 0},
		{"pid=", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := extractPID(tt.content); got != tt.expected {
			t.Errorf("extractPID(%q) = %d, want %d", tt.content, got, tt.expected)
		}
	}
}
