package embedded

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	lockFile      = ".engine.lock"
	lockTimeout   = 5 * time.Second
	lockRetryWait = 500 * time.Millisecond
)

// isProcessRunning is implemented in platform-specific files:
// - lock_unix.go for Unix/Linux/macOS
// - lock_windows.go for Windows

// dirLock is a PID file guarding a data directory against a second process
type dirLock struct {
	path    string
	pid     int
	logger  *zap.Logger
	timeout time.Duration
}

func newDirLock(dir string, logger *zap.Logger) *dirLock {
	return &dirLock{path: filepath.Join(dir, lockFile), pid: os.Getpid(), logger: logger, timeout: lockTimeout}
}

// cleanStale removes the lock file if the owning process is dead
func (l *dirLock) cleanStale() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		// a competing acquire has created the file but not written its PID yet
		if info, err := os.Stat(l.path); err == nil && time.Since(info.ModTime()) < l.timeout {
			return errors.New("lock file is being written")
		}
	}

	pid, err := strconv.Atoi(content)
	if err != nil {
		l.logger.Warn("corrupted lock file, removing", zap.String("path", l.path))
		return os.Remove(l.path)
	}

	if isProcessRunning(pid) {
		return fmt.Errorf("lock held by running process %d", pid)
	}

	l.logger.Info("removing stale lock", zap.Int("pid", pid))
	return os.Remove(l.path)
}

// acquire takes the lock, waiting up to the timeout for another process to let go.
// The lock file is created exclusively so two processes can never both win.
func (l *dirLock) acquire() error {
	if data, err := os.ReadFile(l.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == l.pid {
			return nil
		}
	}

	start := time.Now()
	for {
		err := l.cleanStale()
		if err == nil {
			err = l.create()
			if err == nil {
				l.logger.Debug("data directory lock acquired", zap.Int("pid", l.pid))
				return nil
			}
			if !errors.Is(err, fs.ErrExist) {
				return err
			}
		}

		elapsed := time.Since(start)
		if elapsed >= l.timeout {
			return fmt.Errorf("timeout waiting for data directory lock after %v: %w", elapsed.Round(time.Millisecond), err)
		}
		l.logger.Debug("data directory locked by another process, waiting",
			zap.Duration("elapsed", elapsed.Round(100*time.Millisecond)))
		time.Sleep(l.retryWait())
	}
}

// create writes our PID to a lock file that must not exist yet
func (l *dirLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(l.pid))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", werr)
	}
	return nil
}

func (l *dirLock) retryWait() time.Duration {
	if l.timeout < lockRetryWait {
		return l.timeout / 4
	}
	return lockRetryWait
}

// release removes the lock file if this process owns it
func (l *dirLock) release() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != l.pid {
		l.logger.Warn("lock file owned by another process, not removing",
			zap.Int("owner", pid), zap.Int("pid", l.pid))
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
