package embedded

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDirLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockFile)

	t.Run("acquire and release lock", func(t *testing.T) {
		os.Remove(lockPath)
		l := newDirLock(dir, zap.NewNop())

		if err := l.acquire(); err != nil {
			t.Fatalf("Failed to acquire lock: %v", err)
		}

		data, err := os.ReadFile(lockPath)
		if err != nil {
			t.Fatalf("Lock file not found: %v", err)
		}
		pid, err := strconv.Atoi(string(data))
		if err != nil {
			t.Fatalf("Invalid PID in lock file: %v", err)
		}
		if pid != os.Getpid() {
			t.Errorf("Lock has wrong PID: got %d, want %d", pid, os.Getpid())
		}

		if err := l.release(); err != nil {
			t.Fatalf("Failed to release lock: %v", err)
		}
		if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
			t.Error("Lock file should be removed after release")
		}
	})

	t.Run("detect stale lock", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("99999999"), 0644); err != nil {
			t.Fatalf("Failed to create stale lock: %v", err)
		}

		l := newDirLock(dir, zap.NewNop())
		if err := l.acquire(); err != nil {
			t.Fatalf("Failed to acquire lock after stale lock: %v", err)
		}
		defer l.release()

		data, _ := os.ReadFile(lockPath)
		if pid, _ := strconv.Atoi(string(data)); pid != os.Getpid() {
			t.Errorf("Expected our PID after cleaning stale lock, got %d", pid)
		}
	})

	t.Run("corrupted lock is replaced", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("not-a-pid"), 0644); err != nil {
			t.Fatalf("Failed to write lock: %v", err)
		}

		l := newDirLock(dir, zap.NewNop())
		if err := l.acquire(); err != nil {
			t.Fatalf("Failed to acquire lock: %v", err)
		}
		l.release()
	})

	t.Run("lock held by live process times out", func(t *testing.T) {
		// PID 1 is always running on unix-like systems
		if os.Getpid() == 1 || !isProcessRunning(1) {
			t.Skip("PID 1 not visible")
		}
		if err := os.WriteFile(lockPath, []byte("1"), 0644); err != nil {
			t.Fatalf("Failed to write lock: %v", err)
		}
		defer os.Remove(lockPath)

		l := newDirLock(dir, zap.NewNop())
		l.timeout = 10 * time.Millisecond
		if err := l.acquire(); err == nil {
			t.Fatal("Expected timeout while another process holds the lock")
		}

		if err := l.release(); err != nil {
			t.Fatalf("release of foreign lock should be a no-op: %v", err)
		}
		if _, err := os.Stat(lockPath); err != nil {
			t.Error("Foreign lock file must not be removed")
		}
	})

	t.Run("only one of two racing processes wins", func(t *testing.T) {
		other := os.Getppid()
		if other <= 1 || other == os.Getpid() || !isProcessRunning(other) {
			t.Skip("no second live process to stand in for a competitor")
		}

		for round := 0; round < 20; round++ {
			os.Remove(lockPath)
			locks := []*dirLock{newDirLock(dir, zap.NewNop()), newDirLock(dir, zap.NewNop())}
			locks[1].pid = other

			var wg sync.WaitGroup
			var won atomic.Int32
			for _, l := range locks {
				l.timeout = 20 * time.Millisecond
				wg.Add(1)
				go func(l *dirLock) {
					defer wg.Done()
					if l.acquire() == nil {
						won.Add(1)
					}
				}(l)
			}
			wg.Wait()

			if n := won.Load(); n != 1 {
				t.Fatalf("round %d: %d locks acquired, want exactly 1", round, n)
			}
		}
		os.Remove(lockPath)
	})

	t.Run("fresh empty lock is treated as held", func(t *testing.T) {
		if err := os.WriteFile(lockPath, nil, 0644); err != nil {
			t.Fatalf("Failed to write lock: %v", err)
		}
		defer os.Remove(lockPath)

		l := newDirLock(dir, zap.NewNop())
		l.timeout = time.Minute
		if err := l.cleanStale(); err == nil {
			t.Fatal("Expected an empty lock file younger than the timeout to count as held")
		}
	})
}
