package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestTryLockIsExclusive(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "nested", "ws.lock")

	first := New(lockPath)
	ok, err := first.TryLock()
	if err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if !ok {
		t.Fatal("first TryLock should acquire the lock")
	}
	if !first.Locked() {
		t.Error("Locked() should report true while held")
	}

	second := New(lockPath)
	ok, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock failed: %v", err)
	}
	if ok {
		t.Fatal("second TryLock must not acquire a held lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	ok, err = second.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock after unlock: ok=%v err=%v", ok, err)
	}
	second.Unlock()
}

func TestReleaseRemovesLockFile(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ws.lock")
	lock := New(lockPath)

	if _, err := lock.TryLock(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file should exist while held: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file should be gone after Release, stat err = %v", err)
	}
	if lock.Locked() {
		t.Error("lock should not be held after Release")
	}

	// Releasing twice is harmless.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "adder.py")

	if err := AtomicWrite(path, []byte("v1")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	if err := AtomicWrite(path, []byte("v2")); err != nil {
		t.Fatalf("AtomicWrite overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Errorf("expected v2, got %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected 0644 permissions, got %v", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestConcurrentLockedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			lock := New(path + ".lock")
			if err := lock.Lock(); err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			defer lock.Unlock()
			if err := AtomicWrite(path, []byte(fmt.Sprintf("writer-%d", n))); err != nil {
				t.Errorf("AtomicWrite failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var valid bool
	for i := 0; i < writers; i++ {
		if string(data) == fmt.Sprintf("writer-%d", i) {
			valid = true
		}
	}
	if !valid {
		t.Errorf("file holds a torn write: %q", data)
	}
}
