package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/benaskins/keyring/internal/keyring"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage passwords in the OS credential store",
	Long:  "Read, write and enumerate generic passwords in the macOS Keychain or the Secret Service, and manage the stores that hold them.",

	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func main() {
	err := rootCmd.Execute()
	closeSession()
	if err != nil {
		printError(os.Stderr, err)
		if errors.Is(err, keyring.ErrItemNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
