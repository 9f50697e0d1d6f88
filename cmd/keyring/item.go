package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/benaskins/keyring/internal/keyring"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var getCmd = &cobra.Command{
	Use:   "get <service>",
	Short: "Print the password stored for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		username, _ := cmd.Flags().GetString("username")
		val, err := b.Get(storeFlag(cmd), args[0], username)
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <service> [password]",
	Short: "Store a password for a service",
	Long:  "Store a password, replacing any existing one. If password is omitted, prompts on a terminal or reads stdin. With --command, the password is the output of the command.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		service := args[0]
		store := storeFlag(cmd)
		username, _ := cmd.Flags().GetString("username")

		if command, _ := cmd.Flags().GetString("command"); command != "" {
			if len(args) == 2 {
				return fmt.Errorf("password argument and --command are mutually exclusive")
			}
			if err := keyring.Rotate(b, store, service, username, command); err != nil {
				return err
			}
			success("Password for %q rotated", service)
			return nil
		}

		var password string
		if len(args) == 2 {
			password = args[1]
		} else {
			password, err = readPassword("Enter password: ")
			if err != nil {
				return err
			}
		}

		if err := b.Set(store, service, username, password); err != nil {
			return err
		}
		success("Password for %q stored", service)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <service>",
	Short:   "Remove the password stored for a service",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		username, _ := cmd.Flags().GetString("username")
		if err := b.Delete(storeFlag(cmd), args[0], username); err != nil {
			return err
		}
		success("Password for %q deleted", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored (service, username) pairs",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		service, _ := cmd.Flags().GetString("service")
		listing, err := b.List(storeFlag(cmd), service)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(listing)
		}
		if listing.Len() == 0 {
			fmt.Println("No passwords stored")
			return nil
		}
		return writeListing(os.Stdout, listing)
	},
}

func writeListing(out io.Writer, listing keyring.Listing) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tUSERNAME")
	for i := range listing.Services {
		fmt.Fprintf(w, "%s\t%s\n", listing.Services[i], listing.Usernames[i])
	}
	return w.Flush()
}

// readPassword prompts without echo on a terminal, otherwise reads all of
// stdin and strips trailing newlines.
func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{getCmd, setCmd, deleteCmd} {
		c.Flags().StringP("username", "u", "", "Account name (empty matches the empty account)")
		c.Flags().StringP("store", "s", "", "Store to use (default: the platform default store)")
	}
	setCmd.Flags().String("command", "", "Shell command whose output becomes the password")
	listCmd.Flags().String("service", "", "Only list items for this service")
	listCmd.Flags().StringP("store", "s", "", "Store to enumerate (default: every store on the search path)")
	listCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}
