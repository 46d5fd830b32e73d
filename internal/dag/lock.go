package dag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when a FileLock cannot be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// FileLock is a cross-process mutex backed by flock(2) on a persistent
// file. The kernel drops the lock when its holder exits, so a crashed
// process never locks out later writers. It guards short critical sections
// (the op-heads swap), never a whole transaction.
type FileLock struct {
	f *os.File
}

// AcquireLock takes an exclusive flock on path, creating the file if
// needed, and retries with backoff until ctx is done or timeout elapses.
func AcquireLock(ctx context.Context, path string, timeout time.Duration) (*FileLock, error) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &FileLock{f: f}, nil
		}
		f.Close()
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

// Release drops the lock. The file stays in place; removing it would let a
// waiter lock an unlinked inode while another process creates a new one.
func (l *FileLock) Release() error {
	if l.f == nil {
		return nil
	}
	defer func() { l.f = nil }()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	return l.f.Close()
}
