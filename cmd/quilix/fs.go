package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
	"pkt.systems/quilix/internal/fsbridge"
)

func newFSCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Bind and manage the local folder Quilix mirrors into",
	}
	cmd.AddCommand(newFSPickCmd(opts))
	cmd.AddCommand(newFSRenewCmd(opts))
	cmd.AddCommand(newFSStatusCmd(opts))
	cmd.AddCommand(newFSDisconnectCmd(opts))
	return cmd
}

func newFSPickCmd(opts *rootOptions) *cobra.Command {
	var dir string
	var yes bool
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Choose a directory and grant read-write access to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, newTTYPrompter(cmd, dir, yes), func(ctx context.Context, rt *quilix.Runtime) error {
				h, err := rt.Bridge().RequestDirectoryAccess(ctx)
				if err != nil {
					return err
				}
				if rt.Mirror() != nil {
					if _, err := rt.Mirror().Export(ctx); err != nil {
						return err
					}
				}
				return printHandle(cmd, rt, h)
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to bind instead of asking")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "grant access without asking")
	return cmd
}

func newFSRenewCmd(opts *rootOptions) *cobra.Command {
	var dir string
	var yes bool
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Re-grant access to the bound directory, picking again if it is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, newTTYPrompter(cmd, dir, yes), func(ctx context.Context, rt *quilix.Runtime) error {
				h, err := rt.Bridge().RequestPermissionWithGesture(ctx)
				if err != nil {
					return err
				}
				return printHandle(cmd, rt, h)
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to bind if a new pick is needed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "grant access without asking")
	return cmd
}

func newFSStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the storage mode and the state of the bound directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				out := cmd.OutOrStdout()
				mode := rt.Bridge().StorageMode(ctx)
				h, err := rt.Bridge().EnsurePermittedHandle(ctx)
				if _, werr := fmt.Fprintf(out, "mode: %s\nstate: %s\n", mode, rt.Bridge().State()); werr != nil {
					return werr
				}
				if err != nil {
					_, werr := fmt.Fprintf(out, "handle: %v\n", err)
					return werr
				}
				path, _ := fsbridge.OSPath(h)
				_, err = fmt.Fprintf(out, "handle: %s\n", path)
				return err
			})
		},
	}
}

func newFSDisconnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the bound directory and return to browser storage mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				return rt.Bridge().Disconnect(ctx)
			})
		},
	}
}

func printHandle(cmd *cobra.Command, rt *quilix.Runtime, h fsbridge.DirectoryHandle) error {
	path, ok := fsbridge.OSPath(h)
	if !ok {
		path = h.Name()
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, rt.Bridge().State())
	return err
}
