//go:build darwin

package keyring

// Default returns the Keychain backend.
func Default(opts Options) Backend {
	return NewKeychainBackend(opts.SearchListLock)
}

func openNative(name string, opts Options) (Backend, error) {
	if name == BackendKeychain {
		return NewKeychainBackend(opts.SearchListLock), nil
	}
	return nil, unsupportedBackend(name)
}
