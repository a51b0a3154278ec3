package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
)

func newWindowsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List the windows recorded in the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				sessions, err := rt.Store().ListSessions(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, rec := range sessions {
					marker := ""
					if rec.WindowID == rt.Window().ID() {
						marker = "*"
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, rec.WindowID, rec.WorkspaceID,
						time.UnixMilli(rec.LastSeenAt).Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}
