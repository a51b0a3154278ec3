// Package logx binds window, workspace and tab identifiers to pslog loggers.
package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

type windowKey struct{}

// WithWindow returns the context logger annotated with windowID. A context
// already marked with the same window keeps its logger as is.
func WithWindow(ctx context.Context, windowID schema.WindowID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if windowID == "" {
		return log
	}
	if current, ok := ctx.Value(windowKey{}).(schema.WindowID); ok && current == windowID {
		return log
	}
	return log.With("window", windowID)
}

// ContextWithWindowLogger attaches log and marks the context with windowID.
func ContextWithWindowLogger(ctx context.Context, log pslog.Logger, windowID schema.WindowID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if windowID == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey{}, windowID)
}

// WithWorkspace annotates log with a workspace id when set.
func WithWorkspace(log pslog.Logger, workspaceID schema.WorkspaceID) pslog.Logger {
	if workspaceID == "" {
		return log
	}
	return log.With("workspace", workspaceID)
}

// WithTab annotates log with a tab id when set.
func WithTab(log pslog.Logger, tabID schema.TabID) pslog.Logger {
	if tabID == "" {
		return log
	}
	return log.With("tab", tabID)
}
