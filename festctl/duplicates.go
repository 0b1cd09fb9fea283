package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/audit"
	"github.com/DeafMist/festival-radar/backend/internal/config"
)

var duplicatesPending bool

var duplicatesCmd = &cobra.Command{
	Use:     "duplicates",
	Short:   "Review near-duplicate events dropped by past builds",
	GroupID: "inspect",
}

var duplicatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAudit()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List()
		if err != nil {
			return err
		}
		if duplicatesPending {
			pending := records[:0]
			for _, r := range records {
				if r.Verdict == "" {
					pending = append(pending, r)
				}
			}
			records = pending
		}

		if jsonOutput {
			return printJSON(cmd, records)
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No duplicate groups")
			return nil
		}
		for _, r := range records {
			verdict := r.Verdict
			if verdict == "" {
				verdict = "pending"
			}
			fmt.Fprintf(out, "%s  %-9s %s %q\n", r.Key, verdict, r.Group.SurvivorID, r.Group.SurvivorTitle)
			for _, d := range r.Group.Dropped {
				fmt.Fprintf(out, "    dropped %s %q (%.2f)\n", d.Event.ID, d.Event.Title, d.Score)
			}
		}
		return nil
	},
}

var duplicatesReviewCmd = &cobra.Command{
	Use:   "review <key> <confirmed|distinct>",
	Short: "Record a verdict for a duplicate group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAudit()
		if err != nil {
			return err
		}
		defer store.Close()

		verdict := strings.ToLower(strings.TrimSpace(args[1]))
		if err := store.Review(args[0], verdict); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as %s\n", args[0], verdict)
		return nil
	},
}

func init() {
	duplicatesListCmd.Flags().BoolVar(&duplicatesPending, "pending", false, "only groups without a verdict")
	duplicatesCmd.AddCommand(duplicatesListCmd)
	duplicatesCmd.AddCommand(duplicatesReviewCmd)
}

func openAudit() (*audit.Store, error) {
	cfg, err := config.LoadTools()
	if err != nil {
		return nil, err
	}
	return audit.Open(cfg.AuditDBPath)
}
