//go:build linux

package keyring

// Default returns the Secret Service backend.
func Default(opts Options) Backend {
	return NewSecretServiceBackend(opts.Schema)
}

func openNative(name string, opts Options) (Backend, error) {
	if name == BackendSecretService {
		return NewSecretServiceBackend(opts.Schema), nil
	}
	return nil, unsupportedBackend(name)
}
