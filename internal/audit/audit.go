// Package audit provides append-only structured logging for credential
// operations.
//
// Every item and store operation (read, write, delete, list, rotate, store
// create/delete) is recorded to ~/.keyring/audit.log as newline-delimited
// JSON. Secret values are never written.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action describes what happened.
type Action string

const (
	ActionItemRead    Action = "item_read"
	ActionItemWrite   Action = "item_write"
	ActionItemDelete  Action = "item_delete"
	ActionItemList    Action = "item_list"
	ActionItemRotate  Action = "item_rotate"
	ActionStoreCreate Action = "store_create"
	ActionStoreList   Action = "store_list"
	ActionStoreDelete Action = "store_delete"
)

// Entry is a single audit log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Backend   string    `json:"backend,omitempty"`
	Store     string    `json:"store,omitempty"`
	Service   string    `json:"service,omitempty"`
	Username  string    `json:"username,omitempty"`
	Actor     string    `json:"actor,omitempty"`   // "cli", "rotation"
	Trigger   string    `json:"trigger,omitempty"` // "manual", "hook"
	Command   string    `json:"command,omitempty"` // rotation command if applicable
	Error     string    `json:"error,omitempty"`
}

// Logger appends entries to a log file, one JSON object per line. It is
// safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewLogger opens path for appending, creating the file (mode 0600) and its
// directory (mode 0700) if needed.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{f: f, enc: json.NewEncoder(f)}, nil
}

// Log appends entry, filling in ID and Timestamp when unset.
func (l *Logger) Log(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("audit log is closed")
	}
	if err := l.enc.Encode(entry); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Close closes the log. Later calls to Log fail.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f, l.enc = nil, nil
	return err
}

// Read returns the last limit entries of the log at path, oldest first.
// A limit of zero or less returns every entry. A missing file yields no
// entries; malformed lines are skipped.
func Read(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
