package keyring

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryName prefixes every error reported by the in-memory backend.
const MemoryName = "Memory store"

type memoryKey struct {
	service  string
	username string
}

type memoryStore struct {
	password string
	items    map[memoryKey]string
}

// MemoryBackend is an in-memory implementation of Backend and StoreManager
// for tests. The default store always exists and is never listed.
type MemoryBackend struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: map[string]*memoryStore{
		"": {items: make(map[memoryKey]string)},
	}}
}

func (m *MemoryBackend) store(op Op, name string) (*memoryStore, error) {
	s, ok := m.stores[name]
	if !ok {
		return nil, newError(MemoryName, op, ErrStoreOpen, fmt.Sprintf("no such store %q", name))
	}
	return s, nil
}

func (m *MemoryBackend) Get(store, service, username string) (string, error) {
	if err := checkService(MemoryName, OpGet, service); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.store(OpGet, store)
	if err != nil {
		return "", err
	}
	val, ok := s.items[memoryKey{service, username}]
	if !ok {
		return "", newError(MemoryName, OpGet, ErrItemNotFound, "item not found")
	}
	return val, nil
}

func (m *MemoryBackend) Set(store, service, username, password string) error {
	if err := checkService(MemoryName, OpSet, service); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.store(OpSet, store)
	if err != nil {
		return err
	}
	s.items[memoryKey{service, username}] = password
	return nil
}

func (m *MemoryBackend) Delete(store, service, username string) error {
	if err := checkService(MemoryName, OpDelete, service); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.store(OpDelete, store)
	if err != nil {
		return err
	}
	key := memoryKey{service, username}
	if _, ok := s.items[key]; !ok {
		return newError(MemoryName, OpDelete, ErrItemNotFound, "item not found")
	}
	delete(s.items, key)
	return nil
}

// List returns matching items sorted by service, then username.
func (m *MemoryBackend) List(store, service string) (Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.store(OpList, store)
	if err != nil {
		return Listing{}, err
	}

	keys := make([]memoryKey, 0, len(s.items))
	for k := range s.items {
		if service == "" || k.service == service {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].username < keys[j].username
	})

	out := Listing{Services: []string{}, Usernames: []string{}}
	for _, k := range keys {
		out.add(k.service, k.username)
	}
	return out, nil
}

func (m *MemoryBackend) CreateStore(path, password string) error {
	if path == "" {
		return newError(MemoryName, OpCreate, ErrInvalidInput, "store path must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[path]; ok {
		return newError(MemoryName, OpCreate, ErrNative, fmt.Sprintf("store %q already exists", path))
	}
	m.stores[path] = &memoryStore{password: password, items: make(map[memoryKey]string)}
	return nil
}

// ListStores returns the named stores sorted by path.
func (m *MemoryBackend) ListStores() ([]StoreInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stores := make([]StoreInfo, 0, len(m.stores))
	for path, s := range m.stores {
		if path == "" {
			continue
		}
		stores = append(stores, StoreInfo{Path: path, ItemCount: len(s.items), Unlocked: Unlocked})
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Path < stores[j].Path })
	return stores, nil
}

func (m *MemoryBackend) DeleteStore(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[path]; !ok || path == "" {
		return newError(MemoryName, OpDeleteKeyring, ErrNative, fmt.Sprintf("no such store %q", path))
	}
	delete(m.stores, path)
	return nil
}
