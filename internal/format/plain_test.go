package format

import (
	"reflect"
	"strings"
	"testing"

	"pkt.systems/quilix/schema"
)

func TestFormatTabsMarksActive(t *testing.T) {
	tabs := []schema.Tab{
		{ID: "t1", Route: "/home", Label: "Home", Icon: "home", Order: 0},
		{ID: "t2", Route: "/notes", Label: "Notes", Order: 1},
	}
	lines := NewPlainRenderer().FormatTabs(tabs, "t2")
	want := []string{
		`  0 t1 /home "Home" [home]`,
		`* 1 t2 /notes "Notes"`,
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("unexpected lines:\n%s", strings.Join(lines, "\n"))
	}
}

func TestFormatTabsEmpty(t *testing.T) {
	if lines := NewPlainRenderer().FormatTabs(nil, ""); len(lines) != 1 || lines[0] != "no tabs" {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestFormatHistoryOrdersStacks(t *testing.T) {
	h := schema.TabHistory{
		History: []schema.HistoryEntry{{URL: "/a"}, {URL: "/b", Snapshot: schema.TabState{Label: "B"}}},
		Forward: []schema.HistoryEntry{{URL: "/d"}, {URL: "/c"}},
	}
	lines := NewPlainRenderer().FormatHistory(h)
	want := []string{"  /a", `> /b "B"`, "  /c", "  /d"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("unexpected lines:\n%s", strings.Join(lines, "\n"))
	}
}

func TestFormatEvent(t *testing.T) {
	p := NewPlainRenderer()
	got := p.FormatEvent(schema.TabEvent{Type: schema.TabEventClosed, Tab: schema.TabSnapshot{Tab: schema.Tab{ID: "t1", Route: "/x"}}})
	if got != "tab t1 closed /x" {
		t.Fatalf("unexpected line %q", got)
	}
	if got := p.FormatEvent(schema.TabEvent{}); got != "tab event" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
