package keyring

import (
	"errors"
	"log/slog"

	gokeyring "github.com/zalando/go-keyring"
)

// CredentialName prefixes every error reported by the portable backend.
const CredentialName = "Credential store"

// CredentialBackend stores items through the platform credential API
// exposed by go-keyring (Windows Credential Manager, the login keychain,
// or the Secret Service login collection). It only knows the default
// store and cannot enumerate.
type CredentialBackend struct {
	logger *slog.Logger
}

// NewCredentialBackend returns the portable backend.
func NewCredentialBackend() *CredentialBackend {
	return &CredentialBackend{logger: slog.With("component", "credential")}
}

func (c *CredentialBackend) check(op Op, store, service string) error {
	if store != "" {
		return newError(CredentialName, op, ErrUnsupported, "named stores are not supported")
	}
	return checkService(CredentialName, op, service)
}

func (c *CredentialBackend) fail(op Op, err error) error {
	kind := ErrNative
	switch {
	case errors.Is(err, gokeyring.ErrNotFound):
		kind = ErrItemNotFound
	case errors.Is(err, gokeyring.ErrUnsupportedPlatform):
		kind = ErrUnsupported
	}
	c.logger.Debug("credential call failed", "op", op, "error", err)
	return newError(CredentialName, op, kind, err.Error())
}

func (c *CredentialBackend) Get(store, service, username string) (string, error) {
	if err := c.check(OpGet, store, service); err != nil {
		return "", err
	}
	password, err := gokeyring.Get(service, username)
	if err != nil {
		return "", c.fail(OpGet, err)
	}
	return password, nil
}

func (c *CredentialBackend) Set(store, service, username, password string) error {
	if err := c.check(OpSet, store, service); err != nil {
		return err
	}
	if err := gokeyring.Set(service, username, password); err != nil {
		return c.fail(OpSet, err)
	}
	return nil
}

func (c *CredentialBackend) Delete(store, service, username string) error {
	if err := c.check(OpDelete, store, service); err != nil {
		return err
	}
	if err := gokeyring.Delete(service, username); err != nil {
		return c.fail(OpDelete, err)
	}
	return nil
}

// List is not available through the portable API.
func (c *CredentialBackend) List(store, service string) (Listing, error) {
	return Listing{}, newError(CredentialName, OpList, ErrUnsupported, "listing is not supported")
}
