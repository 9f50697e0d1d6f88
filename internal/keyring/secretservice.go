package keyring

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	dbus "github.com/godbus/dbus/v5"
)

// SecretServiceName prefixes every error reported by the Secret Service
// backend.
const SecretServiceName = "Secret service keyring"

// DefaultSchema is the xdg:schema attribute stamped on every item this
// package writes and required of every item it reads.
const DefaultSchema = "com.github.benaskins.keyring.Password"

const (
	attrService  = "service"
	attrUsername = "username"
	attrSchema   = "xdg:schema"

	defaultAlias = "default"
	noObject     = dbus.ObjectPath("/")
)

// secretServiceAPI is the slice of the org.freedesktop.Secret D-Bus API the
// backend uses.
type secretServiceAPI interface {
	// ReadAlias resolves a collection alias. An unset alias yields "/".
	ReadAlias(name string) (dbus.ObjectPath, error)
	SearchItems(collection dbus.ObjectPath, attrs map[string]string) ([]dbus.ObjectPath, error)
	// SearchAll searches every collection.
	SearchAll(attrs map[string]string) (unlocked, locked []dbus.ObjectPath, err error)
	Unlock(object dbus.ObjectPath) error

	OpenSession() (dbus.ObjectPath, error)
	CloseSession(session dbus.ObjectPath) error
	GetSecret(item, session dbus.ObjectPath) ([]byte, error)
	// CreateItem stores an item, replacing one with identical attributes.
	CreateItem(collection dbus.ObjectPath, label string, attrs map[string]string, session dbus.ObjectPath, secret string) error
	DeleteItem(item dbus.ObjectPath) error
	// ItemAttributes reports false when the object is not a Secret Service
	// item.
	ItemAttributes(item dbus.ObjectPath) (map[string]string, bool, error)

	Close() error
}

// SecretServiceBackend stores generic passwords through the Secret Service
// D-Bus API. The bus connection is opened on first use and kept until
// Close.
type SecretServiceBackend struct {
	dial   func() (secretServiceAPI, error)
	schema string
	logger *slog.Logger

	mu   sync.Mutex
	conn secretServiceAPI
}

func newSecretServiceBackend(dial func() (secretServiceAPI, error), schema string) *SecretServiceBackend {
	if schema == "" {
		schema = DefaultSchema
	}
	return &SecretServiceBackend{
		dial:   dial,
		schema: schema,
		logger: slog.With("component", "secretservice"),
	}
}

// Close tears down the shared bus connection. The next operation reconnects.
func (s *SecretServiceBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.logger.Debug("disconnected from secret service")
	return err
}

func (s *SecretServiceBackend) connect(op Op) (secretServiceAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.dial()
	if err != nil {
		return nil, s.fail(op, ErrNative, fmt.Errorf("cannot connect to secret service: %w", err))
	}
	s.conn = conn
	s.logger.Debug("connected to secret service")
	return conn, nil
}

func (s *SecretServiceBackend) fail(op Op, kind error, err error) error {
	e := newError(SecretServiceName, op, kind, dbusMessage(err))
	s.logger.Debug("secret service call failed", "op", op, "error", e.Message)
	return e
}

// dbusMessage extracts the human-readable part of a D-Bus error.
func dbusMessage(err error) string {
	if err == nil {
		return ""
	}
	var derr dbus.Error
	if errors.As(err, &derr) {
		if len(derr.Body) > 0 {
			if msg, ok := derr.Body[0].(string); ok && msg != "" {
				return msg
			}
		}
		return derr.Name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return dbusMessage(*pderr)
	}
	return err.Error()
}

func (s *SecretServiceBackend) attributes(service, username string) map[string]string {
	return map[string]string{
		attrSchema:   s.schema,
		attrService:  service,
		attrUsername: username,
	}
}

// resolve maps a store name onto a collection path. Empty means the
// default collection.
func (s *SecretServiceBackend) resolve(conn secretServiceAPI, op Op, store string) (dbus.ObjectPath, error) {
	alias := store
	if alias == "" {
		alias = defaultAlias
	}
	path, err := conn.ReadAlias(alias)
	if err != nil {
		return "", s.fail(op, ErrStoreOpen, err)
	}
	if path == noObject || path == "" {
		return "", newError(SecretServiceName, op, ErrStoreOpen, fmt.Sprintf("cannot find keyring %q", alias))
	}
	return path, nil
}

// find returns the unlocked items matching attrs in store, unlocking
// locked matches first.
func (s *SecretServiceBackend) find(conn secretServiceAPI, op Op, store string, attrs map[string]string) ([]dbus.ObjectPath, error) {
	if store != "" {
		collection, err := s.resolve(conn, op, store)
		if err != nil {
			return nil, err
		}
		items, err := conn.SearchItems(collection, attrs)
		if err != nil {
			return nil, s.fail(op, ErrNative, err)
		}
		for _, item := range items {
			if err := conn.Unlock(item); err != nil {
				return nil, s.fail(op, ErrNative, err)
			}
		}
		return items, nil
	}

	unlocked, locked, err := conn.SearchAll(attrs)
	if err != nil {
		return nil, s.fail(op, ErrNative, err)
	}
	for _, item := range locked {
		if err := conn.Unlock(item); err != nil {
			return nil, s.fail(op, ErrNative, err)
		}
	}
	return append(unlocked, locked...), nil
}

// Get returns the secret of the first item matching (service, username).
func (s *SecretServiceBackend) Get(store, service, username string) (string, error) {
	if err := checkService(SecretServiceName, OpGet, service); err != nil {
		return "", err
	}
	conn, err := s.connect(OpGet)
	if err != nil {
		return "", err
	}

	items, err := s.find(conn, OpGet, store, s.attributes(service, username))
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", newError(SecretServiceName, OpGet, ErrItemNotFound, "item not found")
	}

	session, err := conn.OpenSession()
	if err != nil {
		return "", s.fail(OpGet, ErrNative, err)
	}
	defer func() {
		if err := conn.CloseSession(session); err != nil {
			s.logger.Warn("closing secret service session", "error", err)
		}
	}()

	secret, err := conn.GetSecret(items[0], session)
	if err != nil {
		return "", s.fail(OpGet, ErrNative, err)
	}
	return string(secret), nil
}

// Set stores the secret with CreateItem in replace mode, which the daemon
// applies as a single upsert.
func (s *SecretServiceBackend) Set(store, service, username, password string) error {
	if err := checkService(SecretServiceName, OpSet, service); err != nil {
		return err
	}
	conn, err := s.connect(OpSet)
	if err != nil {
		return err
	}

	collection, err := s.resolve(conn, OpSet, store)
	if err != nil {
		return err
	}
	if err := conn.Unlock(collection); err != nil {
		return s.fail(OpSet, ErrNative, err)
	}

	session, err := conn.OpenSession()
	if err != nil {
		return s.fail(OpSet, ErrNative, err)
	}
	defer func() {
		if err := conn.CloseSession(session); err != nil {
			s.logger.Warn("closing secret service session", "error", err)
		}
	}()

	label := fmt.Sprintf("Password for '%s' on '%s'", username, service)
	if err := conn.CreateItem(collection, label, s.attributes(service, username), session, password); err != nil {
		return s.fail(OpSet, ErrNative, err)
	}
	return nil
}

// Delete removes every item matching (service, username).
func (s *SecretServiceBackend) Delete(store, service, username string) error {
	if err := checkService(SecretServiceName, OpDelete, service); err != nil {
		return err
	}
	conn, err := s.connect(OpDelete)
	if err != nil {
		return err
	}

	items, err := s.find(conn, OpDelete, store, s.attributes(service, username))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return newError(SecretServiceName, OpDelete, ErrItemNotFound, "item not found")
	}
	for _, item := range items {
		if err := conn.DeleteItem(item); err != nil {
			return s.fail(OpDelete, ErrNative, err)
		}
	}
	return nil
}

// List enumerates the items of one collection, the default one when store
// is empty.
func (s *SecretServiceBackend) List(store, service string) (Listing, error) {
	conn, err := s.connect(OpList)
	if err != nil {
		return Listing{}, err
	}
	collection, err := s.resolve(conn, OpList, store)
	if err != nil {
		return Listing{}, err
	}

	query := map[string]string{attrSchema: s.schema}
	if service != "" {
		query[attrService] = service
	}
	items, err := conn.SearchItems(collection, query)
	if err != nil {
		return Listing{}, s.fail(OpList, ErrNative, err)
	}

	out := Listing{Services: []string{}, Usernames: []string{}}
	for _, item := range items {
		attrs, ok, err := conn.ItemAttributes(item)
		if err != nil {
			return Listing{}, s.fail(OpList, ErrNative, err)
		}
		if !ok {
			out.add("", "")
			continue
		}
		out.add(attrs[attrService], attrs[attrUsername])
	}
	return out, nil
}
