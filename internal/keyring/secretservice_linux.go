//go:build linux

package keyring

import (
	"errors"

	dbus "github.com/godbus/dbus/v5"
	ss "github.com/zalando/go-keyring/secret_service"
)

const (
	secretsName       = "org.freedesktop.secrets"
	secretsPath       = dbus.ObjectPath("/org/freedesktop/secrets")
	secretsService    = "org.freedesktop.Secret.Service"
	secretsAttributes = "org.freedesktop.Secret.Item.Attributes"
)

// NewSecretServiceBackend returns a Secret Service backend on the session
// bus. schema is the xdg:schema value; empty selects DefaultSchema.
func NewSecretServiceBackend(schema string) *SecretServiceBackend {
	return newSecretServiceBackend(dialSecretService, schema)
}

func dialSecretService() (secretServiceAPI, error) {
	svc, err := ss.NewSecretService()
	if err != nil {
		return nil, err
	}
	return &sessionBus{svc: svc}, nil
}

// sessionBus adapts the go-keyring Secret Service client to
// secretServiceAPI, filling in the calls it does not wrap.
type sessionBus struct {
	svc *ss.SecretService
}

func (b *sessionBus) service() dbus.BusObject {
	return b.svc.Object(secretsName, secretsPath)
}

func (b *sessionBus) ReadAlias(name string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := b.service().Call(secretsService+".ReadAlias", 0, name).Store(&path)
	return path, err
}

func (b *sessionBus) SearchItems(collection dbus.ObjectPath, attrs map[string]string) ([]dbus.ObjectPath, error) {
	return b.svc.SearchItems(b.svc.Object(secretsName, collection), attrs)
}

func (b *sessionBus) SearchAll(attrs map[string]string) ([]dbus.ObjectPath, []dbus.ObjectPath, error) {
	var unlocked, locked []dbus.ObjectPath
	err := b.service().Call(secretsService+".SearchItems", 0, attrs).Store(&unlocked, &locked)
	return unlocked, locked, err
}

func (b *sessionBus) Unlock(object dbus.ObjectPath) error {
	return b.svc.Unlock(object)
}

func (b *sessionBus) OpenSession() (dbus.ObjectPath, error) {
	session, err := b.svc.OpenSession()
	if err != nil {
		return "", err
	}
	return session.Path(), nil
}

func (b *sessionBus) CloseSession(session dbus.ObjectPath) error {
	return b.svc.Close(b.svc.Object(secretsName, session))
}

func (b *sessionBus) GetSecret(item, session dbus.ObjectPath) ([]byte, error) {
	secret, err := b.svc.GetSecret(item, session)
	if err != nil {
		return nil, err
	}
	return secret.Value, nil
}

func (b *sessionBus) CreateItem(collection dbus.ObjectPath, label string, attrs map[string]string, session dbus.ObjectPath, secret string) error {
	return b.svc.CreateItem(b.svc.Object(secretsName, collection), label, attrs, ss.NewSecret(session, secret))
}

func (b *sessionBus) DeleteItem(item dbus.ObjectPath) error {
	return b.svc.Delete(item)
}

func (b *sessionBus) ItemAttributes(item dbus.ObjectPath) (map[string]string, bool, error) {
	v, err := b.svc.Object(secretsName, item).GetProperty(secretsAttributes)
	if err != nil {
		if isNotAnItem(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	attrs, ok := v.Value().(map[string]string)
	return attrs, ok, nil
}

func (b *sessionBus) Close() error {
	return b.svc.Conn.Close()
}

func isNotAnItem(err error) bool {
	var name string
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	}
	switch name {
	case "org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownProperty",
		"org.freedesktop.DBus.Error.InvalidArgs":
		return true
	}
	return false
}
