package keyring

import (
	"fmt"
	"log/slog"
	"sync"
)

// KeychainName prefixes every error reported by the Keychain backend.
const KeychainName = "macOS Keychain"

// nativeRef is an owned Core Foundation reference. Zero is NULL.
type nativeRef uintptr

// Status is a Security.framework OSStatus.
type Status int32

const (
	statusOK                Status = 0
	statusParam             Status = -50
	statusDuplicateItem     Status = -25299
	statusItemNotFound      Status = -25300
	statusNoSuchKeychain    Status = -25294
	statusInvalidKeychain   Status = -25295
	statusDuplicateKeychain Status = -25296
)

// unlockStateStatus is kSecUnlockStateStatus in a SecKeychainStatus mask.
const unlockStateStatus uint32 = 1

// keychainAPI is the slice of Security.framework the Keychain backend uses.
// Every nativeRef it returns is owned by the caller and must be passed to
// Release exactly once.
type keychainAPI interface {
	OpenKeychain(path string) (nativeRef, Status)
	CreateKeychain(path, password string) (nativeRef, Status)
	DeleteKeychain(kc nativeRef) Status
	KeychainPath(kc nativeRef) (string, Status)
	KeychainStatus(kc nativeRef) (uint32, Status)

	CopySearchList() ([]nativeRef, Status)
	SetSearchList(list []nativeRef) Status

	// FindPassword copies the password out of native memory and frees the
	// native buffer before returning.
	FindPassword(kc nativeRef, service, username string) (string, Status)
	FindItem(kc nativeRef, service, username string) (nativeRef, Status)
	AddGenericPassword(kc nativeRef, service, username, password string) Status
	ModifyPassword(item nativeRef, password string) Status
	DeleteItem(item nativeRef) Status

	// CopyGenericPasswords enumerates generic passwords in kc, or in every
	// keychain on the search list when kc is zero. An empty service matches
	// all items.
	CopyGenericPasswords(kc nativeRef, service string) ([]nativeRef, Status)
	IsKeychainItem(ref nativeRef) bool
	ItemAttributes(item nativeRef) (service, username string, st Status)

	ErrorMessage(st Status) (string, bool)
	Release(ref nativeRef)
}

// KeychainBackend stores generic passwords in macOS keychains and manages
// the user search list.
type KeychainBackend struct {
	api    keychainAPI
	logger *slog.Logger

	// searchMu and the lock file serialize search-list read-modify-write
	// within this process and among cooperating processes. Anything else
	// writing the search list concurrently can still lose an update.
	searchMu   sync.Mutex
	searchLock string
}

func newKeychainBackend(api keychainAPI, searchLock string) *KeychainBackend {
	return &KeychainBackend{
		api:        api,
		logger:     slog.With("component", "keychain"),
		searchLock: searchLock,
	}
}

func (k *KeychainBackend) fail(op Op, st Status) error {
	kind := ErrNative
	if st == statusItemNotFound {
		kind = ErrItemNotFound
	}
	return k.failKind(op, kind, st, "")
}

func (k *KeychainBackend) failKind(op Op, kind error, st Status, prefix string) error {
	msg, ok := k.api.ErrorMessage(st)
	if !ok || msg == "" {
		msg = unknownError
	}
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	e := newError(KeychainName, op, kind, msg)
	e.Status = int(st)
	k.logger.Debug("keychain call failed", "op", op, "status", int(st), "message", msg)
	return e
}

func (k *KeychainBackend) release(ref nativeRef) {
	if ref != 0 {
		k.api.Release(ref)
	}
}

func (k *KeychainBackend) releaseAll(refs []nativeRef) {
	for _, r := range refs {
		k.release(r)
	}
}

// openStore returns a validated handle for path, or zero for the default
// store. The caller releases a non-zero handle.
func (k *KeychainBackend) openStore(op Op, path string) (nativeRef, error) {
	if path == "" {
		return 0, nil
	}
	kc, st := k.api.OpenKeychain(path)
	if st != statusOK {
		k.release(kc)
		return 0, k.failKind(op, ErrStoreOpen, st, fmt.Sprintf("cannot open keychain %q", path))
	}
	// SecKeychainOpen succeeds for any path; the status query is what
	// touches the file.
	if _, st := k.api.KeychainStatus(kc); st != statusOK {
		k.release(kc)
		return 0, k.failKind(op, ErrStoreOpen, st, fmt.Sprintf("cannot open keychain %q", path))
	}
	return kc, nil
}

// Get returns the password of the item (service, username) in store.
func (k *KeychainBackend) Get(store, service, username string) (string, error) {
	if err := checkService(KeychainName, OpGet, service); err != nil {
		return "", err
	}
	kc, err := k.openStore(OpGet, store)
	if err != nil {
		return "", err
	}
	defer k.release(kc)

	password, st := k.api.FindPassword(kc, service, username)
	if st != statusOK {
		return "", k.fail(OpGet, st)
	}
	return password, nil
}

// Set inserts the item, or replaces the password of an existing one.
// Lookup and write are separate native calls: two writers that both miss
// the lookup can both insert, and the second gets a duplicate-item error.
func (k *KeychainBackend) Set(store, service, username, password string) error {
	if err := checkService(KeychainName, OpSet, service); err != nil {
		return err
	}
	kc, err := k.openStore(OpSet, store)
	if err != nil {
		return err
	}
	defer k.release(kc)

	item, st := k.api.FindItem(kc, service, username)
	switch st {
	case statusItemNotFound:
		if st := k.api.AddGenericPassword(kc, service, username, password); st != statusOK {
			return k.fail(OpSet, st)
		}
		k.logger.Debug("item added", "service", service, "username", username)
		return nil
	case statusOK:
		defer k.release(item)
		if st := k.api.ModifyPassword(item, password); st != statusOK {
			return k.fail(OpSet, st)
		}
		k.logger.Debug("item updated", "service", service, "username", username)
		return nil
	default:
		k.release(item)
		return k.fail(OpSet, st)
	}
}

// Delete removes the item (service, username) from store.
func (k *KeychainBackend) Delete(store, service, username string) error {
	if err := checkService(KeychainName, OpDelete, service); err != nil {
		return err
	}
	kc, err := k.openStore(OpDelete, store)
	if err != nil {
		return err
	}
	defer k.release(kc)

	item, st := k.api.FindItem(kc, service, username)
	if st != statusOK {
		k.release(item)
		return k.fail(OpDelete, st)
	}
	defer k.release(item)

	if st := k.api.DeleteItem(item); st != statusOK {
		return k.fail(OpDelete, st)
	}
	return nil
}

// List enumerates generic passwords in store, optionally filtered by
// service. An empty store lists every keychain on the search list.
func (k *KeychainBackend) List(store, service string) (Listing, error) {
	kc, err := k.openStore(OpList, store)
	if err != nil {
		return Listing{}, err
	}
	defer k.release(kc)
	return k.list(OpList, kc, service)
}

func (k *KeychainBackend) list(op Op, kc nativeRef, service string) (Listing, error) {
	refs, st := k.api.CopyGenericPasswords(kc, service)
	defer k.releaseAll(refs)

	out := Listing{Services: []string{}, Usernames: []string{}}
	switch st {
	case statusOK:
	case statusItemNotFound:
		return out, nil
	default:
		return Listing{}, k.fail(op, st)
	}

	for _, ref := range refs {
		if !k.api.IsKeychainItem(ref) {
			out.add("", "")
			continue
		}
		svc, user, st := k.api.ItemAttributes(ref)
		if st != statusOK {
			return Listing{}, k.fail(op, st)
		}
		out.add(svc, user)
	}
	return out, nil
}

// CreateStore creates a keychain file at path, unlocked with password, and
// appends it to the user search list. If the search list update fails the
// file is left in place and ErrSearchList is returned.
func (k *KeychainBackend) CreateStore(path, password string) error {
	kc, st := k.api.CreateKeychain(path, password)
	if st != statusOK {
		k.release(kc)
		return k.fail(OpCreate, st)
	}
	defer k.release(kc)

	err := k.mutateSearchList(OpCreate, func(list []nativeRef, write func([]nativeRef) error) error {
		next := make([]nativeRef, 0, len(list)+1)
		next = append(next, list...)
		return write(append(next, kc))
	})
	if err != nil {
		return err
	}
	k.logger.Info("keychain created", "path", path)
	return nil
}

// ListStores reports every keychain on the search list. A store whose lock
// status cannot be read is reported as LockUnknown; a store whose path
// cannot be resolved fails the whole listing.
func (k *KeychainBackend) ListStores() ([]StoreInfo, error) {
	list, st := k.api.CopySearchList()
	defer k.releaseAll(list)
	if st != statusOK {
		return nil, k.fail(OpListKeyrings, st)
	}

	stores := make([]StoreInfo, 0, len(list))
	for _, kc := range list {
		path, st := k.api.KeychainPath(kc)
		if st != statusOK {
			return nil, k.fail(OpListKeyrings, st)
		}

		items, err := k.list(OpListKeyrings, kc, "")
		if err != nil {
			return nil, err
		}

		info := StoreInfo{Path: path, ItemCount: items.Len()}
		if mask, st := k.api.KeychainStatus(kc); st == statusOK {
			if mask&unlockStateStatus != 0 {
				info.Unlocked = Unlocked
			} else {
				info.Unlocked = Locked
			}
		} else {
			k.logger.Debug("keychain status unavailable", "path", path, "status", int(st))
		}
		stores = append(stores, info)
	}
	return stores, nil
}

// DeleteStore removes every occurrence of path from the search list, one
// write per occurrence, then deletes the keychain file. A path that is not
// on the search list is not an error. An entry whose path cannot be read
// aborts with ErrSearchList before the file is touched. If the file cannot
// be deleted after the search list was rewritten, the store is left on disk
// but unlisted.
func (k *KeychainBackend) DeleteStore(path string) error {
	err := k.mutateSearchList(OpDeleteKeyring, func(list []nativeRef, write func([]nativeRef) error) error {
		current := append([]nativeRef(nil), list...)
		for i := 0; i < len(current); {
			p, st := k.api.KeychainPath(current[i])
			if st != statusOK {
				return k.failKind(OpDeleteKeyring, ErrSearchList, st, "resolving search list entry")
			}
			if p != path {
				i++
				continue
			}
			current = append(current[:i], current[i+1:]...)
			if err := write(current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	kc, st := k.api.OpenKeychain(path)
	if st != statusOK {
		k.release(kc)
		return k.fail(OpDeleteKeyring, st)
	}
	defer k.release(kc)

	if st := k.api.DeleteKeychain(kc); st != statusOK {
		return k.fail(OpDeleteKeyring, st)
	}
	k.logger.Info("keychain deleted", "path", path)
	return nil
}

// mutateSearchList reads the user search list, hands it to transform and
// lets transform write replacements through write. The read and the writes
// are separate native calls; the process mutex and lock file narrow the
// window but cannot stop a non-cooperating writer from interleaving.
func (k *KeychainBackend) mutateSearchList(op Op, transform func(list []nativeRef, write func([]nativeRef) error) error) error {
	k.searchMu.Lock()
	defer k.searchMu.Unlock()

	unlock, err := lockFile(k.searchLock)
	if err != nil {
		k.logger.Warn("search list lock unavailable", "path", k.searchLock, "error", err)
		unlock = func() {}
	}
	defer unlock()

	list, st := k.api.CopySearchList()
	defer k.releaseAll(list)
	if st != statusOK {
		return k.failKind(op, ErrSearchList, st, "reading search list")
	}

	write := func(next []nativeRef) error {
		if st := k.api.SetSearchList(next); st != statusOK {
			return k.failKind(op, ErrSearchList, st, "writing search list")
		}
		return nil
	}
	return transform(list, write)
}
