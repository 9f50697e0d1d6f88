//go:build !darwin && !linux

package keyring

// Default returns the portable credential backend.
func Default(opts Options) Backend {
	return NewCredentialBackend()
}

func openNative(name string, opts Options) (Backend, error) {
	return nil, unsupportedBackend(name)
}
