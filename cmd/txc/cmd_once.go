package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/txtclock/pkg/agent"
	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/metrics"
)

func newOnceCmd(ro *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single invocation now and print its report",
		Args:  cobra.NoArgs,
		RunE: withApp(ro, false, func(cmd *cobra.Command, a *app) error {
			session, err := a.newSession(metrics.Nop{})
			if err != nil {
				return err
			}
			rep := session.Invoke(a.context(cmd.Context()), clock.Now())

			if jsonOut {
				a.printJSON(rep)
			} else {
				fmt.Fprintf(a.out, "outcome=%s source=%s %s\n", rep.Outcome, rep.Source, rep.Record)
				if rep.Err != nil {
					fmt.Fprintf(a.out, "error (%s): %v\n", rep.Class, rep.Err)
				}
			}

			// Transient errors are expected and retried by the next run.
			if rep.Class == agent.ClassFatal || rep.Class == agent.ClassIntegrity {
				return rep.Err
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "JSON output")
	return cmd
}
