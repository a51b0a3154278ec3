package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/schema"
)

// TabRepository persists tabs and the per-window settings of a tab session.
type TabRepository interface {
	TabsByWindow(ctx context.Context, workspaceID schema.WorkspaceID, windowID schema.WindowID) ([]schema.Tab, error)
	PutTab(ctx context.Context, tab schema.Tab) error
	PutTabs(ctx context.Context, tabs []schema.Tab) error
	DeleteTab(ctx context.Context, id schema.TabID) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// SessionRecorder is implemented by repositories that track window contexts.
type SessionRecorder interface {
	GetSession(ctx context.Context, windowID schema.WindowID) (schema.SessionRecord, bool, error)
	PutSession(ctx context.Context, rec schema.SessionRecord) error
}

// Router drives navigation of a window.
type Router interface {
	// Navigate loads url and reports once the navigation completed.
	Navigate(ctx context.Context, url string) error
	// ReplaceURL rewrites the current URL without a reload.
	ReplaceURL(url string)
	// CurrentURL returns the URL the window is showing.
	CurrentURL() string
}

// WindowFeatures describes how a new window is opened.
type WindowFeatures struct {
	Popup  bool
	Width  int
	Height int
}

// WindowOpener spawns a new window context.
type WindowOpener interface {
	Open(ctx context.Context, url string, features WindowFeatures) error
}

// WindowDeps captures the collaborators of a window context.
type WindowDeps struct {
	// Session is the storage scoped to this window context.
	Session webstorage.Storage
	// Durable is the storage shared by all windows.
	Durable webstorage.Storage
	Tabs    TabRepository
	Router  Router
	Opener  WindowOpener
	Sink    EventSink
	Logger  pslog.Logger
}
