package keyring

import (
	"fmt"
	"testing"
)

// fakeSecurity is an in-memory keychainAPI that tracks every reference it
// hands out, so tests can assert nothing leaks.
type fakeSecurity struct {
	next        nativeRef
	live        map[nativeRef]*fakeObject
	badReleases int

	files       map[string]*fakeKeychain
	searchList  []string
	defaultPath string

	// fail injects a status for the named method.
	fail       map[string]Status
	failPath   map[string]Status // KeychainPath failure per path
	failStatus map[string]Status // KeychainStatus failure per path
	setCalls   int
	noMessages bool
}

type fakeKeychain struct {
	path     string
	password string
	locked   bool
	items    []*fakeItem
	// foreign entries are returned by enumeration but are not items.
	foreign int
}

type fakeItem struct {
	service  string
	username string
	password string
	label    string
}

type fakeObject struct {
	path    string
	item    *fakeItem
	foreign bool
}

func newFakeSecurity() *fakeSecurity {
	f := &fakeSecurity{
		live:        make(map[nativeRef]*fakeObject),
		files:       make(map[string]*fakeKeychain),
		fail:        make(map[string]Status),
		failPath:    make(map[string]Status),
		failStatus:  make(map[string]Status),
		defaultPath: "/Users/test/Library/Keychains/login.keychain-db",
	}
	f.files[f.defaultPath] = &fakeKeychain{path: f.defaultPath}
	f.searchList = []string{f.defaultPath}
	return f
}

func (f *fakeSecurity) acquire(obj *fakeObject) nativeRef {
	f.next++
	f.live[f.next] = obj
	return f.next
}

func (f *fakeSecurity) injected(method string) (Status, bool) {
	st, ok := f.fail[method]
	return st, ok
}

// keychains returns the keychains a lookup on kc covers.
func (f *fakeSecurity) keychains(kc nativeRef) []*fakeKeychain {
	if kc == 0 {
		var out []*fakeKeychain
		for _, p := range f.searchList {
			if k, ok := f.files[p]; ok {
				out = append(out, k)
			}
		}
		return out
	}
	obj, ok := f.live[kc]
	if !ok {
		return nil
	}
	if k, ok := f.files[obj.path]; ok {
		return []*fakeKeychain{k}
	}
	return nil
}

func (f *fakeSecurity) find(kc nativeRef, service, username string) *fakeItem {
	for _, k := range f.keychains(kc) {
		for _, it := range k.items {
			if it.service == service && it.username == username {
				return it
			}
		}
	}
	return nil
}

func (f *fakeSecurity) OpenKeychain(path string) (nativeRef, Status) {
	if st, ok := f.injected("OpenKeychain"); ok {
		return 0, st
	}
	return f.acquire(&fakeObject{path: path}), statusOK
}

func (f *fakeSecurity) CreateKeychain(path, password string) (nativeRef, Status) {
	if st, ok := f.injected("CreateKeychain"); ok {
		return 0, st
	}
	if _, ok := f.files[path]; ok {
		return 0, statusDuplicateKeychain
	}
	f.files[path] = &fakeKeychain{path: path, password: password}
	return f.acquire(&fakeObject{path: path}), statusOK
}

func (f *fakeSecurity) DeleteKeychain(kc nativeRef) Status {
	if st, ok := f.injected("DeleteKeychain"); ok {
		return st
	}
	obj, ok := f.live[kc]
	if !ok {
		return statusInvalidKeychain
	}
	if _, ok := f.files[obj.path]; !ok {
		return statusNoSuchKeychain
	}
	delete(f.files, obj.path)
	return statusOK
}

func (f *fakeSecurity) KeychainPath(kc nativeRef) (string, Status) {
	obj, ok := f.live[kc]
	if !ok {
		return "", statusInvalidKeychain
	}
	if st, ok := f.failPath[obj.path]; ok {
		return "", st
	}
	return obj.path, statusOK
}

func (f *fakeSecurity) KeychainStatus(kc nativeRef) (uint32, Status) {
	obj, ok := f.live[kc]
	if !ok {
		return 0, statusInvalidKeychain
	}
	if st, ok := f.failStatus[obj.path]; ok {
		return 0, st
	}
	k, ok := f.files[obj.path]
	if !ok {
		return 0, statusNoSuchKeychain
	}
	// read and write permission bits are always set
	mask := uint32(2 | 4)
	if !k.locked {
		mask |= unlockStateStatus
	}
	return mask, statusOK
}

func (f *fakeSecurity) CopySearchList() ([]nativeRef, Status) {
	if st, ok := f.injected("CopySearchList"); ok {
		return nil, st
	}
	refs := make([]nativeRef, 0, len(f.searchList))
	for _, p := range f.searchList {
		refs = append(refs, f.acquire(&fakeObject{path: p}))
	}
	return refs, statusOK
}

func (f *fakeSecurity) SetSearchList(list []nativeRef) Status {
	if st, ok := f.injected("SetSearchList"); ok {
		return st
	}
	paths := make([]string, 0, len(list))
	for _, r := range list {
		obj, ok := f.live[r]
		if !ok {
			return statusParam
		}
		paths = append(paths, obj.path)
	}
	f.searchList = paths
	f.setCalls++
	return statusOK
}

func (f *fakeSecurity) FindPassword(kc nativeRef, service, username string) (string, Status) {
	if st, ok := f.injected("FindPassword"); ok {
		return "", st
	}
	it := f.find(kc, service, username)
	if it == nil {
		return "", statusItemNotFound
	}
	return it.password, statusOK
}

func (f *fakeSecurity) FindItem(kc nativeRef, service, username string) (nativeRef, Status) {
	if st, ok := f.injected("FindItem"); ok {
		return 0, st
	}
	it := f.find(kc, service, username)
	if it == nil {
		return 0, statusItemNotFound
	}
	return f.acquire(&fakeObject{item: it}), statusOK
}

func (f *fakeSecurity) AddGenericPassword(kc nativeRef, service, username, password string) Status {
	if st, ok := f.injected("AddGenericPassword"); ok {
		return st
	}
	if f.find(kc, service, username) != nil {
		return statusDuplicateItem
	}
	var target *fakeKeychain
	if kc == 0 {
		target = f.files[f.defaultPath]
	} else if ks := f.keychains(kc); len(ks) > 0 {
		target = ks[0]
	}
	if target == nil {
		return statusNoSuchKeychain
	}
	target.items = append(target.items, &fakeItem{
		service:  service,
		username: username,
		password: password,
		label:    service,
	})
	return statusOK
}

func (f *fakeSecurity) ModifyPassword(item nativeRef, password string) Status {
	if st, ok := f.injected("ModifyPassword"); ok {
		return st
	}
	obj, ok := f.live[item]
	if !ok || obj.item == nil {
		return statusParam
	}
	obj.item.password = password
	return statusOK
}

func (f *fakeSecurity) DeleteItem(item nativeRef) Status {
	if st, ok := f.injected("DeleteItem"); ok {
		return st
	}
	obj, ok := f.live[item]
	if !ok || obj.item == nil {
		return statusParam
	}
	for _, k := range f.files {
		for i, it := range k.items {
			if it == obj.item {
				k.items = append(k.items[:i], k.items[i+1:]...)
				return statusOK
			}
		}
	}
	return statusItemNotFound
}

func (f *fakeSecurity) CopyGenericPasswords(kc nativeRef, service string) ([]nativeRef, Status) {
	if st, ok := f.injected("CopyGenericPasswords"); ok {
		return nil, st
	}
	var refs []nativeRef
	for _, k := range f.keychains(kc) {
		for _, it := range k.items {
			if service == "" || it.service == service {
				refs = append(refs, f.acquire(&fakeObject{item: it}))
			}
		}
		for i := 0; i < k.foreign; i++ {
			refs = append(refs, f.acquire(&fakeObject{foreign: true}))
		}
	}
	if len(refs) == 0 {
		return nil, statusItemNotFound
	}
	return refs, statusOK
}

func (f *fakeSecurity) IsKeychainItem(ref nativeRef) bool {
	obj, ok := f.live[ref]
	return ok && obj.item != nil
}

func (f *fakeSecurity) ItemAttributes(item nativeRef) (string, string, Status) {
	if st, ok := f.injected("ItemAttributes"); ok {
		return "", "", st
	}
	obj, ok := f.live[item]
	if !ok || obj.item == nil {
		return "", "", statusParam
	}
	return obj.item.service, obj.item.username, statusOK
}

func (f *fakeSecurity) ErrorMessage(st Status) (string, bool) {
	if f.noMessages {
		return "", false
	}
	switch st {
	case statusItemNotFound:
		return "The specified item could not be found in the keychain.", true
	case statusNoSuchKeychain:
		return "The specified keychain could not be found.", true
	}
	return fmt.Sprintf("OSStatus %d", st), true
}

func (f *fakeSecurity) Release(ref nativeRef) {
	if _, ok := f.live[ref]; !ok {
		f.badReleases++
		return
	}
	delete(f.live, ref)
}

func (f *fakeSecurity) assertNoLeaks(t *testing.T) {
	t.Helper()
	if len(f.live) != 0 {
		t.Errorf("expected all native refs released, %d still live", len(f.live))
	}
	if f.badReleases != 0 {
		t.Errorf("expected no releases of unowned refs, got %d", f.badReleases)
	}
}
