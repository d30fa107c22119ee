package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPeersCmd(ro *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List agents seen writing the shared record",
		Args:  cobra.NoArgs,
		RunE: withApp(ro, true, func(cmd *cobra.Command, a *app) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			peers, err := j.ListPeers()
			if err != nil {
				return fmt.Errorf("peers: %w", err)
			}

			if jsonOut {
				a.printJSON(map[string]any{"peers": peers, "count": len(peers)})
				return nil
			}
			if len(peers) == 0 {
				fmt.Fprintln(a.out, "no peers seen")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintf(a.out, "%-36s sightings=%-5d last_deadline=%-11d last_seen=%s (%s ago)\n",
					p.ID, p.Sightings, p.LastDeadline,
					p.LastSeen.Local().Format("2006-01-02 15:04:05"),
					time.Since(p.LastSeen).Truncate(time.Second))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "JSON output")
	return cmd
}
