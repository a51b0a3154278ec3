package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventLoaded indicates the tab list of a window was (re)loaded.
	TabEventLoaded TabEventType = "loaded"
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates the route metadata of a tab changed.
	TabEventUpdated TabEventType = "updated"
	// TabEventReordered indicates the tab order changed.
	TabEventReordered TabEventType = "reordered"
)

// TabEvent represents a change to a tab or the tab list of a window.
type TabEvent struct {
	WindowID    WindowID
	WorkspaceID WorkspaceID
	Type        TabEventType
	Tab         TabSnapshot
	ActiveTab   TabID
}

// AuthEventType is the type of a cross-window auth message.
type AuthEventType string

const (
	// AuthLogin announces a login performed in another window.
	AuthLogin AuthEventType = "LOGIN"
	// AuthLogout announces a logout performed in another window.
	AuthLogout AuthEventType = "LOGOUT"
)

// AuthMessage is broadcast between windows of the same origin.
type AuthMessage struct {
	Type   AuthEventType `json:"type"`
	Sender WindowID      `json:"sender"`
	SentAt int64         `json:"sentAt"`
}
