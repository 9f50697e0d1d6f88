package main

import (
	"fmt"

	"github.com/benaskins/keyring/internal/keyring"
	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate <service>",
	Short: "Replace a password with the output of a command",
	Long:  "Run --command through /bin/sh and store its standard output (one trailing newline stripped) as the new password.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		if command == "" {
			return fmt.Errorf("--command is required")
		}
		b, err := openBackend()
		if err != nil {
			return err
		}
		username, _ := cmd.Flags().GetString("username")
		if err := keyring.Rotate(b, storeFlag(cmd), args[0], username, command); err != nil {
			return err
		}
		success("Password for %q rotated", args[0])
		return nil
	},
}

func init() {
	rotateCmd.Flags().String("command", "", "Shell command whose output becomes the password")
	rotateCmd.Flags().StringP("username", "u", "", "Account name")
	rotateCmd.Flags().StringP("store", "s", "", "Store to use (default: the platform default store)")
	rootCmd.AddCommand(rotateCmd)
}
