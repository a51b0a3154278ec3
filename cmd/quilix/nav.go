package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
	"pkt.systems/quilix/internal/format"
	"pkt.systems/quilix/schema"
)

func newNavCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Navigate the active tab",
	}
	cmd.AddCommand(newNavGoCmd(opts))
	cmd.AddCommand(newNavTravelCmd(opts, "back", "Go one entry back in the active tab"))
	cmd.AddCommand(newNavTravelCmd(opts, "forward", "Go one entry forward in the active tab"))
	cmd.AddCommand(newNavHistoryCmd(opts))
	return cmd
}

func newNavGoCmd(opts *rootOptions) *cobra.Command {
	var label string
	var icon string
	cmd := &cobra.Command{
		Use:   "go <url>",
		Short: "Load a URL in the active tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				if err := rt.Window().Navigate(ctx, args[0], schema.TabState{Label: label, Icon: icon}); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), rt.URL())
				return err
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "tab label shown for the page")
	cmd.Flags().StringVar(&icon, "icon", "", "tab icon shown for the page")
	return cmd
}

func newNavTravelCmd(opts *rootOptions, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				travel := rt.Window().GoBack
				if direction == "forward" {
					travel = rt.Window().GoForward
				}
				moved, err := travel(ctx)
				if err != nil {
					return err
				}
				if !moved {
					return fmt.Errorf("no %s history for the active tab", direction)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rt.URL())
				return err
			})
		},
	}
}

func newNavHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [tab]",
		Short: "Show the history of a tab (default: active tab)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				tab, ok := rt.Window().ActiveTab()
				if len(args) == 1 {
					var err error
					if tab, err = resolveTab(rt.Window().Tabs(), args[0]); err != nil {
						return err
					}
					ok = true
				}
				if !ok {
					return schema.ErrNotLoaded
				}
				h := rt.Window().History().Get(tab.ID)
				return writeLines(cmd.OutOrStdout(), format.NewPlainRenderer().FormatHistory(h))
			})
		},
	}
}
