//go:build !unix

package vault

// fileLock is a no-op where flock is unavailable; atomic rename still keeps
// readers from seeing a partial record.
type fileLock struct{}

func lockFile(path string, exclusive bool) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) unlock() {}
