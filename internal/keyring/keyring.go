// Package keyring provides a uniform get/set/delete/list interface over
// OS-native credential stores.
//
// Items are generic passwords addressed by (store, service, username):
//   - store: the credential container. Empty means the default store. On
//     macOS it is a keychain file path, on Linux a Secret Service
//     collection alias.
//   - service: required, non-empty.
//   - username: optional. An absent username is stored and looked up as "".
//
// Each operation opens the handles it needs, performs its native calls and
// releases every handle before returning. Nothing is cached in-process.
package keyring

import "encoding/json"

// Backend is the item-level contract every native adapter implements.
type Backend interface {
	Get(store, service, username string) (string, error)
	Set(store, service, username, password string) error
	Delete(store, service, username string) error
	List(store, service string) (Listing, error)
}

// StoreManager is implemented by backends that can create and remove
// whole credential stores. Only the macOS Keychain does natively.
type StoreManager interface {
	CreateStore(path, password string) error
	ListStores() ([]StoreInfo, error)
	DeleteStore(path string) error
}

// Listing holds the result of an enumeration as two parallel sequences in
// native order. Services[i] and Usernames[i] describe the same item.
type Listing struct {
	Services  []string `json:"services"`
	Usernames []string `json:"usernames"`
}

// Len returns the number of items in the listing.
func (l Listing) Len() int { return len(l.Services) }

func (l *Listing) add(service, username string) {
	l.Services = append(l.Services, service)
	l.Usernames = append(l.Usernames, username)
}

// LockState is the tri-state unlock flag of a store.
type LockState int

const (
	LockUnknown LockState = iota
	Locked
	Unlocked
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as true, false or null.
func (s LockState) MarshalJSON() ([]byte, error) {
	switch s {
	case Locked:
		return []byte("false"), nil
	case Unlocked:
		return []byte("true"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null.
func (s *LockState) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*s = LockUnknown
	case *v:
		*s = Unlocked
	default:
		*s = Locked
	}
	return nil
}

// StoreInfo describes one store on the search list.
type StoreInfo struct {
	Path      string    `json:"path"`
	ItemCount int       `json:"item_count"`
	Unlocked  LockState `json:"unlocked"`
}
