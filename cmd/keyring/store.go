package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/benaskins/keyring/internal/keyring"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:     "store",
	Short:   "Manage credential stores (keychain files)",
	Aliases: []string{"stores"},
}

var storeCreateCmd = &cobra.Command{
	Use:   "create <path> [password]",
	Short: "Create a store and add it to the search list",
	Long:  "Create a store protected by password. If password is omitted, prompts on a terminal or reads stdin.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openStoreManager()
		if err != nil {
			return err
		}
		var password string
		if len(args) == 2 {
			password = args[1]
		} else {
			password, err = readPassword("Enter store password: ")
			if err != nil {
				return err
			}
		}
		if err := m.CreateStore(args[0], password); err != nil {
			return err
		}
		success("Store %q created", args[0])
		return nil
	},
}

var storeListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stores on the search list",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openStoreManager()
		if err != nil {
			return err
		}
		stores, err := m.ListStores()
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(stores)
		}
		if len(stores) == 0 {
			fmt.Println("No stores")
			return nil
		}
		return writeStores(os.Stdout, stores)
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:     "delete <path>",
	Short:   "Remove a store from the search list and delete its file",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openStoreManager()
		if err != nil {
			return err
		}
		if err := m.DeleteStore(args[0]); err != nil {
			return err
		}
		success("Store %q deleted", args[0])
		return nil
	},
}

func writeStores(out io.Writer, stores []keyring.StoreInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tITEMS\tSTATE")
	for _, s := range stores {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Path, s.ItemCount, s.Unlocked)
	}
	return w.Flush()
}

func init() {
	storeListCmd.Flags().Bool("json", false, "Output as JSON")

	storeCmd.AddCommand(storeCreateCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	rootCmd.AddCommand(storeCmd)
}
