package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/keyring/internal/audit"
	"github.com/benaskins/keyring/internal/config"
	"github.com/benaskins/keyring/internal/keyring"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	backendName string
	logLevel    string
	noAudit     bool
)

// Populated by setup before any command runs.
var (
	cfg      *config.Config
	backend  keyring.Backend
	auditLog *audit.Logger
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	flags.StringVar(&backendName, "backend", "", "Backend to use (auto, keychain, secret-service, credential, memory)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&noAudit, "no-audit", false, "Do not record operations to the audit log")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if backendName != "" {
		c.Backend = backendName
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if noAudit {
		c.DisableAudit = true
	}
	level, err := c.Level()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	cfg = c
	return nil
}

// openBackend builds the configured backend, wrapped with audit logging
// unless it is disabled.
func openBackend() (keyring.Backend, error) {
	if backend != nil {
		return backend, nil
	}
	b, err := keyring.Open(cfg.Backend, keyring.Options{
		Schema:         cfg.Schema,
		SearchListLock: cfg.SearchListLock,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("backend opened", "backend", cfg.Backend)

	if !cfg.DisableAudit {
		l, err := audit.NewLogger(cfg.AuditLog)
		if err != nil {
			keyring.Close(b)
			return nil, err
		}
		auditLog = l
		b = keyring.NewAuditedBackend(b, cfg.Backend, l, "cli")
	}
	backend = b
	return backend, nil
}

// openStoreManager returns the backend as a StoreManager, failing before
// anything is recorded when the underlying backend has no notion of stores.
func openStoreManager() (keyring.StoreManager, error) {
	b, err := openBackend()
	if err != nil {
		return nil, err
	}
	native := b
	if a, ok := b.(*keyring.AuditedBackend); ok {
		native = a.Unwrap()
	}
	if _, ok := native.(keyring.StoreManager); !ok {
		return nil, fmt.Errorf("backend %q cannot manage stores: %w", cfg.Backend, keyring.ErrUnsupported)
	}
	return b.(keyring.StoreManager), nil
}

func closeSession() {
	if backend != nil {
		if err := keyring.Close(backend); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
	if auditLog != nil {
		auditLog.Close()
	}
}

// storeFlag resolves the --store flag, falling back to the configured store.
func storeFlag(cmd *cobra.Command) string {
	if cmd.Flags().Changed("store") {
		s, _ := cmd.Flags().GetString("store")
		return s
	}
	return cfg.Store
}
