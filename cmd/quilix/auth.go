package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/quilix"
	"pkt.systems/quilix/internal/fsbridge"
	"pkt.systems/quilix/internal/syncbus"
	"pkt.systems/quilix/schema"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in or out and keep other windows in step",
	}
	cmd.AddCommand(newAuthTransitionCmd(opts, "login", "Sign in and tell the other windows"))
	cmd.AddCommand(newAuthTransitionCmd(opts, "logout", "Sign out and tell the other windows"))
	cmd.AddCommand(newAuthStatusCmd(opts))
	cmd.AddCommand(newAuthListenCmd(opts))
	return cmd
}

func newAuthTransitionCmd(opts *rootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				if action == "login" {
					return rt.Auth().Login(ctx)
				}
				return rt.Auth().Logout(ctx)
			})
		},
	}
}

func newAuthStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether this profile is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, nil, func(ctx context.Context, rt *quilix.Runtime) error {
				signedIn, err := syncbus.StorageAuthenticator{Storage: rt.Durable()}.SignedIn(ctx)
				if err != nil {
					return err
				}
				state := "signed out"
				if signedIn {
					state = "signed in"
				}
				if syncbus.ConsumeJustLoggedIn(ctx, rt.Session()) {
					state += " (just logged in)"
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), state)
				return err
			})
		},
	}
}

func newAuthListenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run the window context and follow auth changes from other windows",
		Long: "Listen keeps the window context open until interrupted, printing auth messages\n" +
			"from other windows and mirroring local data in filesystem mode. With the default\n" +
			"hub sync backend only windows in this process are heard; use the redis backend\n" +
			"to follow other processes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			rt, err := quilix.Open(ctx, quilix.Options{
				Config:    cfg,
				ContextID: opts.contextID,
				Prompter:  fsbridge.StaticPrompter{},
				OnAuth: func(msg schema.AuthMessage) {
					_, _ = fmt.Fprintf(out, "%s from %s\n", msg.Type, msg.Sender)
				},
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					pslog.Ctx(ctx).Warn("quilix runtime close failed", "err", err)
				}
			}()
			return rt.Run(ctx)
		},
	}
}
