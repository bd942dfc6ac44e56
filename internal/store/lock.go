package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// fileLock is a cross-process lock on a sidecar file using flock(2). Several
// vcwatch processes (a watcher, the HTTP feed, a one-off CLI call) may touch
// the same notification log.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// lock acquires the lock, blocking until available. exclusive selects
// LOCK_EX over LOCK_SH. The lock file is created if missing, but its
// directory is not.
func (fl *fileLock) lock(exclusive bool) error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrLockDirMissing, fl.path)
		}
		return fmt.Errorf("open lock file: %w", err)
	}

	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

// unlock releases the lock and closes the lock file.
func (fl *fileLock) unlock() error {
	if fl.file == nil {
		return nil
	}
	defer func() { fl.file = nil }()

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		return fmt.Errorf("funlock: %w", err)
	}
	return fl.file.Close()
}
