package format

import (
	"fmt"
	"strings"

	"pkt.systems/quilix/schema"
)

const (
	// ActiveMarker prefixes the active tab.
	ActiveMarker = "* "
	// CurrentMarker prefixes the current history entry.
	CurrentMarker = "> "
	idle          = "  "
)

// PlainRenderer formats tab state as plain text lines.
type PlainRenderer struct{}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

// FormatTabs lists tabs in display order, marking the active one.
func (p *PlainRenderer) FormatTabs(tabs []schema.Tab, active schema.TabID) []string {
	if len(tabs) == 0 {
		return []string{"no tabs"}
	}
	lines := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		marker := idle
		if tab.ID == active {
			marker = ActiveMarker
		}
		lines = append(lines, fmt.Sprintf("%s%d %s %s %s", marker, tab.Order, tab.ID, tab.Route, tabTitle(tab.Label, tab.Icon)))
	}
	return lines
}

// FormatHistory lists the back stack oldest first, the current entry, then
// the forward stack nearest first.
func (p *PlainRenderer) FormatHistory(h schema.TabHistory) []string {
	if len(h.History) == 0 && len(h.Forward) == 0 {
		return []string{"no history"}
	}
	lines := make([]string, 0, len(h.History)+len(h.Forward))
	for i, entry := range h.History {
		marker := idle
		if i == len(h.History)-1 {
			marker = CurrentMarker
		}
		lines = append(lines, marker+formatEntry(entry))
	}
	for i := len(h.Forward) - 1; i >= 0; i-- {
		lines = append(lines, idle+formatEntry(h.Forward[i]))
	}
	return lines
}

// FormatEvent converts a TabEvent into a user-facing line.
func (p *PlainRenderer) FormatEvent(event schema.TabEvent) string {
	switch event.Type {
	case schema.TabEventLoaded:
		return fmt.Sprintf("loaded workspace %s (active %s)", event.WorkspaceID, event.ActiveTab)
	case schema.TabEventReordered:
		return "tabs reordered"
	case schema.TabEventCreated, schema.TabEventClosed, schema.TabEventActivated, schema.TabEventUpdated:
		return fmt.Sprintf("tab %s %s %s", event.Tab.ID, event.Type, event.Tab.Route)
	default:
		label := string(event.Type)
		if label == "" {
			label = "tab"
		}
		return fmt.Sprintf("%s event", label)
	}
}

func formatEntry(entry schema.HistoryEntry) string {
	title := tabTitle(entry.Snapshot.Label, entry.Snapshot.Icon)
	if title == "" {
		return entry.URL
	}
	return entry.URL + " " + title
}

func tabTitle(label, icon string) string {
	label = strings.TrimSpace(label)
	icon = strings.TrimSpace(icon)
	switch {
	case label == "" && icon == "":
		return ""
	case icon == "":
		return fmt.Sprintf("%q", label)
	default:
		return fmt.Sprintf("%q [%s]", label, icon)
	}
}
