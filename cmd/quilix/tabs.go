package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
	"pkt.systems/quilix/internal/format"
	"pkt.systems/quilix/schema"
)

func newTabsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Manage the tabs of a window context",
	}
	cmd.AddCommand(newTabsListCmd(opts))
	cmd.AddCommand(newTabsNewCmd(opts))
	cmd.AddCommand(newTabsCloseCmd(opts))
	cmd.AddCommand(newTabsActivateCmd(opts))
	cmd.AddCommand(newTabsReorderCmd(opts))
	return cmd
}

func newTabsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tabs, marking the active one",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				return printTabs(cmd, rt)
			})
		},
	}
}

func newTabsNewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Open a Home tab and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				tab, err := rt.Window().CreateTab(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tab.ID)
				return err
			})
		},
	}
}

func newTabsCloseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <tab>",
		Short: "Close a tab by id or position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				tab, err := resolveTab(rt.Window().Tabs(), args[0])
				if err != nil {
					return err
				}
				res, err := rt.Window().CloseTab(ctx, tab.ID)
				if err != nil {
					return err
				}
				if !res.Closed {
					return fmt.Errorf("tab %s cannot be closed: it is the last tab", tab.ID)
				}
				return printTabs(cmd, rt)
			})
		},
	}
}

func newTabsActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <tab>",
		Short: "Switch to a tab by id or position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				tab, err := resolveTab(rt.Window().Tabs(), args[0])
				if err != nil {
					return err
				}
				if _, err := rt.Window().ActivateTab(ctx, tab.ID); err != nil {
					return err
				}
				return printTabs(cmd, rt)
			})
		},
	}
}

func newTabsReorderCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <tab>...",
		Short: "Set the tab order; unnamed tabs keep their relative order after the named ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				tabs := rt.Window().Tabs()
				ids := make([]schema.TabID, 0, len(args))
				for _, arg := range args {
					tab, err := resolveTab(tabs, arg)
					if err != nil {
						return err
					}
					ids = append(ids, tab.ID)
				}
				if err := rt.Window().Session().UpdateTabOrders(ctx, ids); err != nil {
					return err
				}
				return printTabs(cmd, rt)
			})
		},
	}
}

func printTabs(cmd *cobra.Command, rt *quilix.Runtime) error {
	var active schema.TabID
	if tab, ok := rt.Window().ActiveTab(); ok {
		active = tab.ID
	}
	return writeLines(cmd.OutOrStdout(), format.NewPlainRenderer().FormatTabs(rt.Window().Tabs(), active))
}
