//go:build unix

package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory flock held on a sidecar lock file.
type fileLock struct {
	f *os.File
}

func lockFile(path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil && !exclusive && readOnly(err) {
		// Shared locks work on a read-only descriptor. With no lock file
		// and no way to create one there is no writer to exclude.
		f, err = os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			return &fileLock{}, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock: %v", ErrIO, err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: locking %s: %v", ErrIO, path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) unlock() {
	if l.f == nil {
		return
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}

func readOnly(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, unix.EROFS)
}
