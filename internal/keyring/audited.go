package keyring

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/keyring/internal/audit"
)

// AuditedBackend wraps a Backend and records every operation to an audit
// log. Audit logging is best-effort: a failed write is logged and the
// operation result is returned unchanged.
type AuditedBackend struct {
	inner   Backend
	name    string
	audit   *audit.Logger
	actor   string
	logger  *slog.Logger
	rotator func(command string) (string, error)
}

// NewAuditedBackend wraps inner. name is recorded as the entry backend and
// actor as the entry actor ("cli").
func NewAuditedBackend(inner Backend, name string, auditLog *audit.Logger, actor string) *AuditedBackend {
	return &AuditedBackend{
		inner:   inner,
		name:    name,
		audit:   auditLog,
		actor:   actor,
		logger:  slog.With("component", "audit"),
		rotator: runRotationCommand,
	}
}

// Unwrap returns the wrapped backend.
func (a *AuditedBackend) Unwrap() Backend { return a.inner }

func (a *AuditedBackend) record(e audit.Entry, err error) {
	e.Backend = a.name
	if e.Actor == "" {
		e.Actor = a.actor
	}
	if err != nil {
		e.Error = err.Error()
	}
	if logErr := a.audit.Log(e); logErr != nil {
		a.logger.Warn("audit log write failed", "action", e.Action, "error", logErr)
	}
}

func (a *AuditedBackend) Get(store, service, username string) (string, error) {
	val, err := a.inner.Get(store, service, username)
	a.record(audit.Entry{Action: audit.ActionItemRead, Store: store, Service: service, Username: username}, err)
	if err != nil {
		return "", fmt.Errorf("audited get: %w", err)
	}
	return val, nil
}

func (a *AuditedBackend) Set(store, service, username, password string) error {
	err := a.inner.Set(store, service, username, password)
	a.record(audit.Entry{Action: audit.ActionItemWrite, Store: store, Service: service, Username: username}, err)
	if err != nil {
		return fmt.Errorf("audited set: %w", err)
	}
	return nil
}

func (a *AuditedBackend) Delete(store, service, username string) error {
	err := a.inner.Delete(store, service, username)
	a.record(audit.Entry{Action: audit.ActionItemDelete, Store: store, Service: service, Username: username}, err)
	if err != nil {
		return fmt.Errorf("audited delete: %w", err)
	}
	return nil
}

func (a *AuditedBackend) List(store, service string) (Listing, error) {
	l, err := a.inner.List(store, service)
	a.record(audit.Entry{Action: audit.ActionItemList, Store: store, Service: service}, err)
	if err != nil {
		return Listing{}, fmt.Errorf("audited list: %w", err)
	}
	return l, nil
}

func (a *AuditedBackend) manager(op Op) (StoreManager, error) {
	m, ok := a.inner.(StoreManager)
	if !ok {
		return nil, newError(a.name, op, ErrUnsupported, "store management is not supported")
	}
	return m, nil
}

func (a *AuditedBackend) CreateStore(path, password string) error {
	m, err := a.manager(OpCreate)
	if err == nil {
		err = m.CreateStore(path, password)
	}
	a.record(audit.Entry{Action: audit.ActionStoreCreate, Store: path}, err)
	if err != nil {
		return fmt.Errorf("audited create store: %w", err)
	}
	return nil
}

func (a *AuditedBackend) ListStores() ([]StoreInfo, error) {
	m, err := a.manager(OpListKeyrings)
	var stores []StoreInfo
	if err == nil {
		stores, err = m.ListStores()
	}
	a.record(audit.Entry{Action: audit.ActionStoreList}, err)
	if err != nil {
		return nil, fmt.Errorf("audited list stores: %w", err)
	}
	return stores, nil
}

func (a *AuditedBackend) DeleteStore(path string) error {
	m, err := a.manager(OpDeleteKeyring)
	if err == nil {
		err = m.DeleteStore(path)
	}
	a.record(audit.Entry{Action: audit.ActionStoreDelete, Store: path}, err)
	if err != nil {
		return fmt.Errorf("audited delete store: %w", err)
	}
	return nil
}

// Rotate runs command, stores its output as the new password of
// (service, username) and logs the rotation.
func (a *AuditedBackend) Rotate(store, service, username, command string) error {
	entry := audit.Entry{
		Action:   audit.ActionItemRotate,
		Store:    store,
		Service:  service,
		Username: username,
		Trigger:  "hook",
		Command:  command,
	}

	value, err := a.rotator(command)
	if err != nil {
		a.record(entry, err)
		return fmt.Errorf("rotation command failed: %w", err)
	}

	err = a.inner.Set(store, service, username, value)
	a.record(entry, err)
	if err != nil {
		return fmt.Errorf("storing rotated secret: %w", err)
	}
	return nil
}

// Close closes the wrapped backend's connection, if any.
func (a *AuditedBackend) Close() error {
	return Close(a.inner)
}
