package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
	"pkt.systems/quilix/schema"
)

func newTearOffCmd(opts *rootOptions) *cobra.Command {
	var spaceID string
	cmd := &cobra.Command{
		Use:   "tearoff [tab]",
		Short: "Move a tab, or open a space, in a new window context",
		Long: "Tear off hands the tab and its history to a new window context and prints the\n" +
			"context name. Open the new context with --context to adopt the tab.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (spaceID == "") == (len(args) == 0) {
				return errors.New("tearoff needs either a tab or --space")
			}
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				var token schema.TransferToken
				if spaceID != "" {
					sp, found, err := rt.Store().GetSpace(ctx, schema.SpaceID(spaceID))
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("space %s not found", spaceID)
					}
					if token, err = rt.Window().TearOffSpace(ctx, sp); err != nil {
						return err
					}
				} else {
					tab, err := resolveTab(rt.Window().Tabs(), args[0])
					if err != nil {
						return err
					}
					if token, err = rt.Window().TearOffTab(ctx, tab.ID); err != nil {
						return err
					}
				}
				opened := rt.OpenedContexts()
				if len(opened) == 0 {
					return fmt.Errorf("tear-off %s opened no window", token)
				}
				last := opened[len(opened)-1]
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", last.ContextID, last.URL)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&spaceID, "space", "", "open this space instead of tearing off a tab")
	return cmd
}
