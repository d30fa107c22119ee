package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/txtclock/pkg/agent"
	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/metrics"
	"github.com/daviddao/txtclock/pkg/model"
)

func newStatusCmd(ro *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the shared record as each read path sees it",
		Long: `Show the shared record as the resolver and the Cloudflare API see it,
plus the last journaled invocation. Nothing is created or updated.`,
		Args: cobra.NoArgs,
		RunE: withApp(ro, false, func(cmd *cobra.Command, a *app) error {
			ctx := a.context(cmd.Context())
			session, err := a.newSession(metrics.Nop{})
			if err != nil {
				return err
			}
			st, err := session.Inspect(ctx, clock.Now())
			if err != nil {
				return err
			}

			var last *model.Invocation
			if a.journal != nil {
				if last, err = a.journal.LastInvocation(); err != nil {
					logger.Warn(ctx, "Journal read failed", logger.Err(err))
				}
			}

			if jsonOut {
				a.printJSON(map[string]any{
					"status":          st,
					"last_invocation": last,
				})
				return nil
			}
			printStatus(a.out, st, last)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "JSON output")
	return cmd
}

func printStatus(w io.Writer, st *agent.Status, last *model.Invocation) {
	fmt.Fprintf(w, "record: %s (zone %s) now=%d\n", st.FQDN, st.ZoneID, st.Now)
	for _, v := range []agent.View{st.Resolver, st.Authoritative} {
		switch {
		case v.Error != "":
			fmt.Fprintf(w, "  %-14s %s: %s\n", v.Source, v.Class, v.Error)
		case !v.Found:
			fmt.Fprintf(w, "  %-14s absent\n", v.Source)
		default:
			due := "pending"
			if v.Due {
				due = "due"
			}
			prev := "null"
			if v.PreviousDeadline != nil {
				prev = fmt.Sprint(*v.PreviousDeadline)
			}
			fmt.Fprintf(w, "  %-14s id=%s timer=%d timerold=%s %s", v.Source, v.Writer, v.Deadline, prev, due)
			if v.EntryID != "" {
				fmt.Fprintf(w, " entry=%s", v.EntryID)
			}
			fmt.Fprintln(w)
		}
	}
	if last == nil {
		fmt.Fprintln(w, "last run: none")
		return
	}
	fmt.Fprintf(w, "last run: %s outcome=%s source=%s timer=%d\n",
		last.StartedAt.Local().Format("2006-01-02 15:04:05"), last.Outcome, last.Source, last.Deadline)
	if last.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", last.Error)
	}
}
