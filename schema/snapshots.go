package schema

// MirrorVersion is the current filesystem mirror format version.
const MirrorVersion = 1

// HistoryEntry is one recorded navigation of a tab.
type HistoryEntry struct {
	URL      string   `json:"url"`
	Snapshot TabState `json:"snapshot"`
}

// TabHistory holds the back and forward stacks of a tab.
// The last element of History is the current entry.
type TabHistory struct {
	History []HistoryEntry `json:"history"`
	Forward []HistoryEntry `json:"forward"`
}

// Clone returns a deep copy.
func (h TabHistory) Clone() TabHistory {
	return TabHistory{
		History: append([]HistoryEntry{}, h.History...),
		Forward: append([]HistoryEntry{}, h.Forward...),
	}
}

// Current returns the top of the back stack.
func (h TabHistory) Current() (HistoryEntry, bool) {
	if len(h.History) == 0 {
		return HistoryEntry{}, false
	}
	return h.History[len(h.History)-1], true
}

// TransferPayload is the one-shot tear-off handoff written by the source window.
type TransferPayload struct {
	TabState       TabState `json:"tabState"`
	HistoryPayload string   `json:"historyPayload"`
}

// MirrorState is the full snapshot written to the filesystem mirror file.
type MirrorState struct {
	Version    int         `json:"version"`
	ExportedAt int64       `json:"exportedAt"`
	Workspaces []Workspace `json:"workspaces"`
	Spaces     []Space     `json:"spaces"`
	Tabs       []Tab       `json:"tabs"`
}

// TabSnapshot is a read-only view of a tab for subscribers.
type TabSnapshot struct {
	Tab
	Active bool
}
