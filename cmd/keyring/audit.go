package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/benaskins/keyring/internal/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := audit.Read(cfg.AuditLog, limit)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			if entries == nil {
				entries = []audit.Entry{}
			}
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries")
			return nil
		}
		return writeEntries(os.Stdout, entries)
	},
}

func writeEntries(out io.Writer, entries []audit.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tSTORE\tSERVICE\tUSERNAME\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, e.Store, e.Service, e.Username, e.Error)
	}
	return w.Flush()
}

func init() {
	auditCmd.Flags().Int("limit", 20, "Number of most recent entries to show (0 for all)")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(auditCmd)
}
