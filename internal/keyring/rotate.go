package keyring

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runRotationCommand executes a shell command and captures its stdout as
// the new secret. The command must print the value and nothing else; one
// trailing newline is stripped.
func runRotationCommand(command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	value := strings.TrimSuffix(string(output), "\n")
	if value == "" {
		return "", errors.New("command produced no output")
	}
	return value, nil
}

// Rotator is implemented by backends that record rotations themselves.
type Rotator interface {
	Rotate(store, service, username, command string) error
}

// Rotate runs command and stores its output as the password of
// (service, username) in b.
func Rotate(b Backend, store, service, username, command string) error {
	if r, ok := b.(Rotator); ok {
		return r.Rotate(store, service, username, command)
	}
	value, err := runRotationCommand(command)
	if err != nil {
		return fmt.Errorf("rotation command failed: %w", err)
	}
	if err := b.Set(store, service, username, value); err != nil {
		return fmt.Errorf("storing rotated secret: %w", err)
	}
	return nil
}
