package keyring

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendAuto          = "auto"
	BackendKeychain      = "keychain"
	BackendSecretService = "secret-service"
	BackendCredential    = "credential"
	BackendMemory        = "memory"
)

// Options tunes the native backends.
type Options struct {
	// Schema is the Secret Service xdg:schema value.
	Schema string
	// SearchListLock is the lock file guarding Keychain search-list updates.
	SearchListLock string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Schema: DefaultSchema, SearchListLock: SearchListLockPath()}
}

// SearchListLockPath returns ~/.keyring/searchlist.lock.
func SearchListLockPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".keyring", "searchlist.lock")
}

// Open returns the backend registered under name. Native backends that are
// not compiled for this platform fail with ErrUnsupported.
func Open(name string, opts Options) (Backend, error) {
	switch name {
	case "", BackendAuto:
		return Default(opts), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendCredential:
		return NewCredentialBackend(), nil
	case BackendKeychain, BackendSecretService:
		return openNative(name, opts)
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

// Close releases any process-wide connection held by b.
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func unsupportedBackend(name string) error {
	return fmt.Errorf("backend %q: %w on this platform", name, ErrUnsupported)
}
