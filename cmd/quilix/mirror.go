package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/quilix"
)

var errMirrorDisabled = errors.New("mirror is disabled in the config")

func newMirrorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy local data to and from the bound directory",
	}
	cmd.AddCommand(newMirrorExportCmd(opts))
	cmd.AddCommand(newMirrorImportCmd(opts))
	return cmd
}

func newMirrorExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the local data file into the bound directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				if rt.Mirror() == nil {
					return errMirrorDisabled
				}
				wrote, err := rt.Mirror().Export(ctx)
				if err != nil {
					return err
				}
				return reportMirror(cmd, "exported", wrote)
			})
		},
	}
}

func newMirrorImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Merge the data file from the bound directory into local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				if rt.Mirror() == nil {
					return errMirrorDisabled
				}
				merged, err := rt.Mirror().Import(ctx)
				if err != nil {
					return err
				}
				return reportMirror(cmd, "imported", merged)
			})
		},
	}
}

func reportMirror(cmd *cobra.Command, action string, done bool) error {
	msg := action
	if !done {
		msg = "nothing " + action + " (not in filesystem mode or no data file)"
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}
