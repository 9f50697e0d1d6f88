//go:build !unix

package keyring

// lockFile is a no-op where flock is unavailable; the process mutex still
// applies.
func lockFile(path string) (func(), error) {
	return func() {}, nil
}
