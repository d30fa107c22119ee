package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCmd(ro *rootOptions) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List recent invocations from the local journal",
		Args:  cobra.NoArgs,
		RunE: withApp(ro, true, func(cmd *cobra.Command, a *app) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			invs, err := j.ListInvocations(limit)
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}
			counts, err := j.CountInvocations()
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}

			if jsonOut {
				a.printJSON(map[string]any{"invocations": invs, "count": len(invs), "outcomes": counts})
				return nil
			}
			if len(invs) == 0 {
				fmt.Fprintln(a.out, "no invocations")
				return nil
			}
			for _, inv := range invs {
				fmt.Fprintf(a.out, "%s  %-13s %-13s timer=%-11d agent=%s",
					inv.StartedAt.Local().Format("2006-01-02 15:04:05"),
					inv.Outcome, inv.Source, inv.Deadline, inv.AgentID)
				if inv.Error != "" {
					fmt.Fprintf(a.out, "  error=%q", inv.Error)
				}
				fmt.Fprintln(a.out)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max invocations to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "JSON output")
	return cmd
}
