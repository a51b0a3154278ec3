package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("quilix command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "quilix",
		Short:         "Quilix window, tab and local storage tool",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.cfgPath, "config", "c", "", "path to config file")
	flags.StringVar(&opts.contextID, "context", "", "window context name (default \"main\")")
	flags.StringVarP(&opts.workspace, "workspace", "w", "", "workspace id overriding the config")
	flags.BoolVar(&opts.events, "events", false, "print the tab events a command causes to stderr")

	root.AddCommand(newTabsCmd(opts))
	root.AddCommand(newNavCmd(opts))
	root.AddCommand(newTearOffCmd(opts))
	root.AddCommand(newAuthCmd(opts))
	root.AddCommand(newFSCmd(opts))
	root.AddCommand(newMirrorCmd(opts))
	root.AddCommand(newWorkspaceCmd(opts))
	root.AddCommand(newSpaceCmd(opts))
	root.AddCommand(newWindowsCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}
