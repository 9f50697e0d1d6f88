package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/keyring/internal/audit"
	"github.com/benaskins/keyring/internal/keyring"
)

// setupCLI points the CLI at a memory backend and a temporary audit log.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "backend: memory\naudit_log: " + auditPath + "\nsearch_list_lock: " + filepath.Join(dir, "searchlist.lock") + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	backend, auditLog = nil, nil
	t.Cleanup(func() {
		closeSession()
		backend, auditLog = nil, nil
		logLevel = ""
	})
	configPath = cfgPath
	return auditPath
}

func run(args ...string) error {
	rootCmd.SetArgs(append(args, "--config", configPath))
	return rootCmd.Execute()
}

func TestCLISetGetDelete(t *testing.T) {
	auditPath := setupCLI(t)

	if err := run("set", "db", "hunter2", "-u", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := backend.Get("", "db", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "hunter2" {
		t.Errorf("expected hunter2, got %q", val)
	}
	if err := run("get", "db", "-u", "alice"); err != nil {
		t.Fatalf("get command: %v", err)
	}
	if err := run("delete", "db", "-u", "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = run("get", "db", "-u", "alice")
	if !errors.Is(err, keyring.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	entries, err := audit.Read(auditPath, 0)
	if err != nil {
		t.Fatal(err)
	}
	// direct backend.Get above is audited too
	if len(entries) != 5 {
		t.Fatalf("expected 5 audit entries, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionItemWrite || entries[0].Actor != "cli" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[4].Error == "" {
		t.Error("expected failed get to be recorded with its error")
	}
}

func TestCLIStoreCommands(t *testing.T) {
	setupCLI(t)

	if err := run("store", "create", "/tmp/app.keychain", "pw"); err != nil {
		t.Fatalf("store create: %v", err)
	}
	if err := run("store", "list"); err != nil {
		t.Fatalf("store list: %v", err)
	}
	m := backend.(keyring.StoreManager)
	stores, err := m.ListStores()
	if err != nil {
		t.Fatal(err)
	}
	if len(stores) != 1 || stores[0].Path != "/tmp/app.keychain" {
		t.Fatalf("unexpected stores: %+v", stores)
	}
	if err := run("store", "delete", "/tmp/app.keychain"); err != nil {
		t.Fatalf("store delete: %v", err)
	}
	if err := run("store", "delete", "/tmp/app.keychain"); err == nil {
		t.Fatal("expected error deleting a missing store")
	}
}

func TestCLIUnknownBackend(t *testing.T) {
	setupCLI(t)
	dir := filepath.Dir(configPath)
	content := "backend: nope\nsearch_list_lock: " + filepath.Join(dir, "searchlist.lock") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := run("list"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

// writeCLIConfig replaces the config written by setupCLI.
func writeCLIConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestCLILogLevelFlagOverridesConfig(t *testing.T) {
	auditPath := setupCLI(t)
	dir := filepath.Dir(configPath)
	writeCLIConfig(t, "backend: memory\nlog_level: loud\naudit_log: "+auditPath+
		"\nsearch_list_lock: "+filepath.Join(dir, "searchlist.lock")+"\n")

	if err := run("list"); err == nil || !strings.Contains(err.Error(), "invalid log_level") {
		t.Fatalf("expected invalid log_level without an override, got %v", err)
	}
	if err := run("list", "--log-level", "debug"); err != nil {
		t.Fatalf("expected --log-level to override the config value, got %v", err)
	}
}

func TestCLIDirectoriesCreatedOnDemand(t *testing.T) {
	setupCLI(t)
	dir := filepath.Dir(configPath)
	auditPath := filepath.Join(dir, "logs", "audit.log")
	lockDir := filepath.Join(dir, "locks")
	writeCLIConfig(t, "backend: memory\naudit_log: "+auditPath+
		"\nsearch_list_lock: "+filepath.Join(lockDir, "searchlist.lock")+"\n")

	if err := run("set", "db", "pw", "-u", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := os.Stat(auditPath); err != nil {
		t.Errorf("expected audit log created, got %v", err)
	}
	if _, err := os.Stat(lockDir); !os.IsNotExist(err) {
		t.Errorf("expected no lock directory for the memory backend, got %v", err)
	}
}

func TestCLIStoreCommandsUnsupported(t *testing.T) {
	auditPath := setupCLI(t)
	dir := filepath.Dir(configPath)
	writeCLIConfig(t, "backend: credential\naudit_log: "+auditPath+
		"\nsearch_list_lock: "+filepath.Join(dir, "searchlist.lock")+"\n")

	err := run("store", "list")
	if !errors.Is(err, keyring.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "credential") {
		t.Errorf("expected backend name in error, got %v", err)
	}
	entries, _ := audit.Read(auditPath, 0)
	if len(entries) != 0 {
		t.Errorf("expected nothing audited for a rejected store command, got %+v", entries)
	}
}

func TestWriteListing(t *testing.T) {
	var buf bytes.Buffer
	listing := keyring.Listing{
		Services:  []string{"db", "api"},
		Usernames: []string{"alice", ""},
	}
	if err := writeListing(&buf, listing); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "SERVICE") || !strings.Contains(lines[1], "alice") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestWriteStores(t *testing.T) {
	var buf bytes.Buffer
	stores := []keyring.StoreInfo{
		{Path: "/k/a.keychain", ItemCount: 3, Unlocked: keyring.Unlocked},
		{Path: "/k/b.keychain", ItemCount: 0, Unlocked: keyring.LockUnknown},
	}
	if err := writeStores(&buf, stores); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "unlocked") || !strings.Contains(out, "unknown") {
		t.Errorf("expected lock states in output, got:\n%s", out)
	}
}
