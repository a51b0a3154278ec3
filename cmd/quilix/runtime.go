package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/quilix"
	"pkt.systems/quilix/internal/appconfig"
	"pkt.systems/quilix/internal/format"
	"pkt.systems/quilix/internal/fsbridge"
	"pkt.systems/quilix/schema"
)

type rootOptions struct {
	cfgPath   string
	contextID string
	workspace string
	events    bool
}

func (o *rootOptions) loadConfig() (appconfig.Config, error) {
	cfg, err := appconfig.Load(o.cfgPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if ws := strings.TrimSpace(o.workspace); ws != "" {
		if err := schema.ValidateWorkspaceID(schema.WorkspaceID(ws)); err != nil {
			return appconfig.Config{}, err
		}
		cfg.Workspace = ws
	}
	return cfg, nil
}

// withRuntime opens the selected window context, runs fn and closes it.
func withRuntime(cmd *cobra.Command, opts *rootOptions, prompter fsbridge.Prompter, fn func(ctx context.Context, rt *quilix.Runtime) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if prompter == nil {
		prompter = fsbridge.StaticPrompter{}
	}
	rt, err := quilix.Open(ctx, quilix.Options{Config: cfg, ContextID: opts.contextID, Prompter: prompter})
	if err != nil {
		return err
	}
	if !opts.events {
		return closeRuntime(ctx, rt, fn(ctx, rt))
	}
	events, stop := rt.Bus().Subscribe(rt.Window().ID())
	runErr := fn(ctx, rt)
	stop()
	renderer := format.NewPlainRenderer()
	for event := range events {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), renderer.FormatEvent(event))
	}
	return closeRuntime(ctx, rt, runErr)
}

func closeRuntime(ctx context.Context, rt *quilix.Runtime, runErr error) error {
	if err := rt.Close(); err != nil {
		pslog.Ctx(ctx).Warn("quilix runtime close failed", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// ttyPrompter answers directory and access prompts on the terminal.
type ttyPrompter struct {
	in  *bufio.Reader
	out io.Writer
	dir string
	yes bool
}

func newTTYPrompter(cmd *cobra.Command, dir string, yes bool) *ttyPrompter {
	return &ttyPrompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr(), dir: dir, yes: yes}
}

func (p *ttyPrompter) PickDirectory(ctx context.Context) (string, error) {
	if p.dir != "" {
		return p.dir, nil
	}
	_, _ = fmt.Fprint(p.out, "directory: ")
	return p.readLine(ctx)
}

func (p *ttyPrompter) ConfirmAccess(ctx context.Context, path string, mode fsbridge.AccessMode) (bool, error) {
	if p.yes {
		return true, nil
	}
	_, _ = fmt.Fprintf(p.out, "allow %s access to %s? [y/N] ", mode, path)
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *ttyPrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// resolveTab accepts a tab id or its position in the tab list.
func resolveTab(tabs []schema.Tab, arg string) (schema.Tab, error) {
	arg = strings.TrimSpace(arg)
	for _, tab := range tabs {
		if string(tab.ID) == arg {
			return tab, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n < len(tabs) {
		return tabs[n], nil
	}
	return schema.Tab{}, fmt.Errorf("tab %q: %w", arg, schema.ErrTabNotFound)
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
