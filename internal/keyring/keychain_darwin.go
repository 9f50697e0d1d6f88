//go:build darwin

package keyring

/*
#cgo CFLAGS: -Wno-deprecated-declarations
#cgo LDFLAGS: -framework CoreFoundation -framework Security

#include <limits.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <CoreFoundation/CoreFoundation.h>
#include <Security/Security.h>

static char *kr_copy_bytes(const void *data, UInt32 len) {
	char *s = malloc(len + 1);
	if (s == NULL) {
		return NULL;
	}
	if (len > 0 && data != NULL) {
		memcpy(s, data, len);
	}
	s[len] = '\0';
	return s;
}

static OSStatus kr_item_attributes(SecKeychainItemRef item, char **service, UInt32 *serviceLen, char **account, UInt32 *accountLen) {
	SecKeychainAttribute attrs[2];
	attrs[0].tag = kSecServiceItemAttr;
	attrs[0].length = 0;
	attrs[0].data = NULL;
	attrs[1].tag = kSecAccountItemAttr;
	attrs[1].length = 0;
	attrs[1].data = NULL;
	SecKeychainAttributeList list = { 2, attrs };

	OSStatus st = SecKeychainItemCopyContent(item, NULL, &list, NULL, NULL);
	if (st != errSecSuccess) {
		return st;
	}
	*service = kr_copy_bytes(list.attr[0].data, list.attr[0].length);
	*serviceLen = list.attr[0].length;
	*account = kr_copy_bytes(list.attr[1].data, list.attr[1].length);
	*accountLen = list.attr[1].length;
	SecKeychainItemFreeContent(&list, NULL);
	if (*service == NULL || *account == NULL) {
		free(*service);
		free(*account);
		return errSecAllocate;
	}
	return errSecSuccess;
}

static OSStatus kr_copy_generic_passwords(SecKeychainRef kc, const char *service, CFArrayRef *out) {
	const void *keys[5];
	const void *values[5];
	CFIndex n = 0;
	CFStringRef svc = NULL;
	CFArrayRef scope = NULL;

	keys[n] = kSecClass;
	values[n++] = kSecClassGenericPassword;
	keys[n] = kSecMatchLimit;
	values[n++] = kSecMatchLimitAll;
	keys[n] = kSecReturnRef;
	values[n++] = kCFBooleanTrue;
	if (service != NULL) {
		svc = CFStringCreateWithCString(NULL, service, kCFStringEncodingUTF8);
		keys[n] = kSecAttrService;
		values[n++] = svc;
	}
	const void *kcs[1] = { kc };
	scope = CFArrayCreate(NULL, kcs, 1, &kCFTypeArrayCallBacks);
	keys[n] = kSecMatchSearchList;
	values[n++] = scope;

	CFDictionaryRef query = CFDictionaryCreate(NULL, keys, values, n,
		&kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	CFTypeRef result = NULL;
	OSStatus st = SecItemCopyMatching(query, &result);
	CFRelease(query);
	CFRelease(scope);
	if (svc != NULL) {
		CFRelease(svc);
	}
	if (st != errSecSuccess) {
		return st;
	}
	*out = (CFArrayRef)result;
	return errSecSuccess;
}

static OSStatus kr_set_search_list(uintptr_t *refs, CFIndex n) {
	CFArrayRef list = CFArrayCreate(NULL, (const void **)refs, n, &kCFTypeArrayCallBacks);
	if (list == NULL) {
		return errSecAllocate;
	}
	OSStatus st = SecKeychainSetDomainSearchList(kSecPreferencesDomainUser, list);
	CFRelease(list);
	return st;
}

static char *kr_error_message(OSStatus st) {
	CFStringRef msg = SecCopyErrorMessageString(st, NULL);
	if (msg == NULL) {
		return NULL;
	}
	CFIndex size = CFStringGetMaximumSizeForEncoding(CFStringGetLength(msg), kCFStringEncodingUTF8) + 1;
	char *buf = malloc(size);
	if (buf != NULL && !CFStringGetCString(msg, buf, size, kCFStringEncodingUTF8)) {
		free(buf);
		buf = NULL;
	}
	CFRelease(msg);
	return buf;
}
*/
import "C"

import (
	"errors"
	"unsafe"

	gokeychain "github.com/keybase/go-keychain"
)

// NewKeychainBackend returns a Keychain backend bound to Security.framework.
// lockPath names the advisory lock taken around search-list updates; empty
// disables it.
func NewKeychainBackend(lockPath string) *KeychainBackend {
	return newKeychainBackend(securityFramework{}, lockPath)
}

// securityFramework implements keychainAPI with the legacy SecKeychain
// calls, which are the only ones that address keychain files by path.
type securityFramework struct{}

func cstr(s string) (*C.char, C.UInt32) {
	return C.CString(s), C.UInt32(len(s))
}

func (securityFramework) OpenKeychain(path string) (nativeRef, Status) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var kc C.SecKeychainRef
	st := C.SecKeychainOpen(cpath, &kc)
	return nativeRef(kc), Status(st)
}

func (securityFramework) CreateKeychain(path, password string) (nativeRef, Status) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	cpw, n := cstr(password)
	defer C.free(unsafe.Pointer(cpw))

	var kc C.SecKeychainRef
	st := C.SecKeychainCreate(cpath, n, unsafe.Pointer(cpw), C.Boolean(0), 0, &kc)
	return nativeRef(kc), Status(st)
}

func (securityFramework) DeleteKeychain(kc nativeRef) Status {
	return Status(C.SecKeychainDelete(C.SecKeychainRef(kc)))
}

func (securityFramework) KeychainPath(kc nativeRef) (string, Status) {
	var buf [C.PATH_MAX + 1]C.char
	n := C.UInt32(len(buf))
	st := C.SecKeychainGetPath(C.SecKeychainRef(kc), &n, &buf[0])
	if st != 0 {
		return "", Status(st)
	}
	return C.GoStringN(&buf[0], C.int(n)), statusOK
}

func (securityFramework) KeychainStatus(kc nativeRef) (uint32, Status) {
	var mask C.SecKeychainStatus
	st := C.SecKeychainGetStatus(C.SecKeychainRef(kc), &mask)
	return uint32(mask), Status(st)
}

func (securityFramework) CopySearchList() ([]nativeRef, Status) {
	var list C.CFArrayRef
	st := C.SecKeychainCopyDomainSearchList(C.kSecPreferencesDomainUser, &list)
	if st != 0 {
		return nil, Status(st)
	}
	return arrayElements(list), statusOK
}

func (securityFramework) SetSearchList(list []nativeRef) Status {
	var p *C.uintptr_t
	if len(list) > 0 {
		p = (*C.uintptr_t)(unsafe.Pointer(&list[0]))
	}
	return Status(C.kr_set_search_list(p, C.CFIndex(len(list))))
}

func (securityFramework) FindPassword(kc nativeRef, service, username string) (string, Status) {
	csvc, nsvc := cstr(service)
	defer C.free(unsafe.Pointer(csvc))
	cuser, nuser := cstr(username)
	defer C.free(unsafe.Pointer(cuser))

	var length C.UInt32
	var data unsafe.Pointer
	st := C.SecKeychainFindGenericPassword(C.CFTypeRef(kc), nsvc, csvc, nuser, cuser, &length, &data, nil)
	if st != 0 {
		return "", Status(st)
	}
	defer C.SecKeychainItemFreeContent(nil, data)
	return C.GoStringN((*C.char)(data), C.int(length)), statusOK
}

func (securityFramework) FindItem(kc nativeRef, service, username string) (nativeRef, Status) {
	csvc, nsvc := cstr(service)
	defer C.free(unsafe.Pointer(csvc))
	cuser, nuser := cstr(username)
	defer C.free(unsafe.Pointer(cuser))

	var item C.SecKeychainItemRef
	st := C.SecKeychainFindGenericPassword(C.CFTypeRef(kc), nsvc, csvc, nuser, cuser, nil, nil, &item)
	return nativeRef(item), Status(st)
}

func (securityFramework) AddGenericPassword(kc nativeRef, service, username, password string) Status {
	csvc, nsvc := cstr(service)
	defer C.free(unsafe.Pointer(csvc))
	cuser, nuser := cstr(username)
	defer C.free(unsafe.Pointer(cuser))
	cpw, npw := cstr(password)
	defer C.free(unsafe.Pointer(cpw))

	return Status(C.SecKeychainAddGenericPassword(C.SecKeychainRef(kc), nsvc, csvc, nuser, cuser, npw, unsafe.Pointer(cpw), nil))
}

func (securityFramework) ModifyPassword(item nativeRef, password string) Status {
	cpw, npw := cstr(password)
	defer C.free(unsafe.Pointer(cpw))

	return Status(C.SecKeychainItemModifyAttributesAndData(C.SecKeychainItemRef(item), nil, npw, unsafe.Pointer(cpw)))
}

func (securityFramework) DeleteItem(item nativeRef) Status {
	return Status(C.SecKeychainItemDelete(C.SecKeychainItemRef(item)))
}

func (securityFramework) CopyGenericPasswords(kc nativeRef, service string) ([]nativeRef, Status) {
	if kc == 0 {
		return copyDefaultGenericPasswords(service)
	}

	var csvc *C.char
	if service != "" {
		csvc = C.CString(service)
		defer C.free(unsafe.Pointer(csvc))
	}
	var result C.CFArrayRef
	if st := C.kr_copy_generic_passwords(C.SecKeychainRef(kc), csvc, &result); st != 0 {
		return nil, Status(st)
	}
	return arrayElements(result), statusOK
}

// copyDefaultGenericPasswords runs an unscoped SecItem query, which covers
// every keychain on the search list.
func copyDefaultGenericPasswords(service string) ([]nativeRef, Status) {
	query := gokeychain.NewItem()
	query.SetSecClass(gokeychain.SecClassGenericPassword)
	if service != "" {
		query.SetService(service)
	}
	query.SetMatchLimit(gokeychain.MatchLimitAll)
	query.SetReturnRef(true)

	ref, err := gokeychain.QueryItemRef(query)
	if err != nil {
		var kerr gokeychain.Error
		if errors.As(err, &kerr) {
			return nil, Status(kerr)
		}
		return nil, statusParam
	}
	if ref == 0 {
		return nil, statusItemNotFound
	}
	return arrayElements(C.CFArrayRef(uintptr(ref))), statusOK
}

func (securityFramework) IsKeychainItem(ref nativeRef) bool {
	return C.CFGetTypeID(C.CFTypeRef(ref)) == C.SecKeychainItemGetTypeID()
}

func (securityFramework) ItemAttributes(item nativeRef) (string, string, Status) {
	var svc, acct *C.char
	var nsvc, nacct C.UInt32
	st := C.kr_item_attributes(C.SecKeychainItemRef(item), &svc, &nsvc, &acct, &nacct)
	if st != 0 {
		return "", "", Status(st)
	}
	defer C.free(unsafe.Pointer(svc))
	defer C.free(unsafe.Pointer(acct))
	return C.GoStringN(svc, C.int(nsvc)), C.GoStringN(acct, C.int(nacct)), statusOK
}

func (securityFramework) ErrorMessage(st Status) (string, bool) {
	msg := C.kr_error_message(C.OSStatus(st))
	if msg == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(msg))
	return C.GoString(msg), true
}

func (securityFramework) Release(ref nativeRef) {
	C.CFRelease(C.CFTypeRef(ref))
}

// arrayElements retains every element of arr, releases arr and returns the
// owned elements.
func arrayElements(arr C.CFArrayRef) []nativeRef {
	if arr == 0 {
		return nil
	}
	defer C.CFRelease(C.CFTypeRef(arr))

	n := int(C.CFArrayGetCount(arr))
	refs := make([]nativeRef, 0, n)
	for i := 0; i < n; i++ {
		v := C.CFTypeRef(uintptr(C.CFArrayGetValueAtIndex(arr, C.CFIndex(i))))
		C.CFRetain(v)
		refs = append(refs, nativeRef(v))
	}
	return refs
}
