package schema

import "time"

// WindowID identifies one window context.
type WindowID string

// TabID identifies a tab.
type TabID string

// WorkspaceID identifies a workspace.
type WorkspaceID string

// SpaceID identifies a space inside a workspace.
type SpaceID string

// TransferToken keys a one-shot tear-off payload.
type TransferToken string

// WorkspaceRole is the caller's role within a workspace.
type WorkspaceRole string

const (
	// RoleOwner owns the workspace.
	RoleOwner WorkspaceRole = "owner"
	// RoleMember is a regular member.
	RoleMember WorkspaceRole = "member"
)

// HomeRoute is the route of a freshly created tab.
const HomeRoute = "/home"

// TabState is the route metadata shown on a tab.
type TabState struct {
	Route string `json:"route"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// HomeTabState returns the state of a default "Home" tab.
func HomeTabState() TabState {
	return TabState{Route: HomeRoute, Label: "Home", Icon: "home"}
}

// Tab is a persisted tab record scoped to a workspace and window.
type Tab struct {
	ID          TabID       `json:"id"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	WindowID    WindowID    `json:"windowId"`
	Label       string      `json:"label"`
	Icon        string      `json:"icon"`
	Route       string      `json:"route"`
	Order       int         `json:"order"`
	CreatedAt   int64       `json:"createdAt,omitempty"`
}

// State returns the route metadata of the tab.
func (t Tab) State() TabState {
	return TabState{Route: t.Route, Label: t.Label, Icon: t.Icon}
}

// WithState returns a copy of the tab carrying state.
func (t Tab) WithState(state TabState) Tab {
	t.Route = state.Route
	t.Label = state.Label
	t.Icon = state.Icon
	return t
}

// Workspace is a persisted workspace record.
type Workspace struct {
	ID           WorkspaceID   `json:"id"`
	Name         string        `json:"name"`
	Role         WorkspaceRole `json:"role"`
	LastActiveAt int64         `json:"lastActiveAt"`
	TrashedAt    *int64        `json:"trashedAt,omitempty"`
}

// Space is a persisted space record.
type Space struct {
	ID          SpaceID     `json:"id"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	Name        string      `json:"name"`
	FolderName  string      `json:"folderName"`
	Order       int         `json:"order"`
	TrashedAt   *int64      `json:"trashedAt,omitempty"`
}

// Setting is a persisted key/value setting.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SessionRecord records a window context seen by the store.
type SessionRecord struct {
	WindowID    WindowID    `json:"windowId"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	OpenedAt    int64       `json:"openedAt"`
	LastSeenAt  int64       `json:"lastSeenAt"`
}

// NowMillis returns t as unix milliseconds.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
