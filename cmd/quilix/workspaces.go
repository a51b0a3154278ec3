package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
	"pkt.systems/quilix/schema"
)

func newWorkspaceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"workspaces"},
		Short:   "Manage workspaces and their folders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workspaces",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				items, err := rt.Store().ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, ws := range items {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", ws.ID, ws.Name, ws.Role)
				}
				return tw.Flush()
			})
		},
	})
	cmd.AddCommand(newWorkspacePutCmd(opts, "add", "Create a workspace and its folder", false))
	cmd.AddCommand(newWorkspacePutCmd(opts, "rename", "Rename a workspace and move its folder", true))
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a workspace and its folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				return rt.DeleteWorkspace(ctx, schema.WorkspaceID(args[0]))
			})
		},
	})
	return cmd
}

func newWorkspacePutCmd(opts *rootOptions, use, short string, mustExist bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <name>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := schema.WorkspaceID(args[0])
			name := strings.Join(args[1:], " ")
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				ws, found, err := rt.Store().GetWorkspace(ctx, id)
				if err != nil {
					return err
				}
				switch {
				case mustExist && !found:
					return fmt.Errorf("workspace %s: %w", id, schema.ErrInvalidWorkspace)
				case !mustExist && found:
					return fmt.Errorf("workspace %s already exists", id)
				}
				ws.ID = id
				ws.Name = name
				return rt.PutWorkspace(ctx, ws)
			})
		},
	}
}

func newSpaceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "space",
		Aliases: []string{"spaces"},
		Short:   "Manage the spaces of the current workspace",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List spaces of the current workspace",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				items, err := rt.Store().SpacesByWorkspace(ctx, schema.WorkspaceID(rt.Config().Workspace))
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, sp := range items {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", sp.ID, sp.Name, sp.FolderName)
				}
				return tw.Flush()
			})
		},
	})
	cmd.AddCommand(newSpacePutCmd(opts, "add", "Create a space and its folder", false))
	cmd.AddCommand(newSpacePutCmd(opts, "rename", "Rename a space and its folder", true))
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a space and its folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				return rt.DeleteSpace(ctx, schema.SpaceID(args[0]))
			})
		},
	})
	return cmd
}

func newSpacePutCmd(opts *rootOptions, use, short string, mustExist bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <name>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := schema.SpaceID(args[0])
			name := strings.Join(args[1:], " ")
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				sp, found, err := rt.Store().GetSpace(ctx, id)
				if err != nil {
					return err
				}
				switch {
				case mustExist && !found:
					return fmt.Errorf("space %s not found", id)
				case !mustExist && found:
					return fmt.Errorf("space %s already exists", id)
				}
				if !found {
					sp = schema.Space{ID: id, WorkspaceID: schema.WorkspaceID(rt.Config().Workspace)}
				}
				sp.Name = name
				saved, err := rt.PutSpace(ctx, sp)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), saved.FolderName)
				return err
			})
		},
	}
}
