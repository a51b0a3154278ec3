package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lines(out string) []string {
	return strings.Split(strings.TrimRight(out, "\n"), "\n")
}

func TestTabsLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)
	first := lines(mustRun(t, cfg, "tabs", "list"))
	if len(first) != 1 || !strings.HasPrefix(first[0], "* 0 ") || !strings.Contains(first[0], "/home") {
		t.Fatalf("expected one active Home tab, got %q", first)
	}

	id := strings.TrimSpace(mustRun(t, cfg, "tabs", "new"))
	listed := lines(mustRun(t, cfg, "tabs", "list"))
	if len(listed) != 2 || !strings.HasPrefix(listed[1], "* 1 "+id) {
		t.Fatalf("expected new tab to be active and last, got %q", listed)
	}

	after := lines(mustRun(t, cfg, "tabs", "activate", "0"))
	if !strings.HasPrefix(after[0], "* ") {
		t.Fatalf("expected first tab active, got %q", after)
	}

	reordered := lines(mustRun(t, cfg, "tabs", "reorder", id))
	if !strings.Contains(reordered[0], id) {
		t.Fatalf("expected %s first after reorder, got %q", id, reordered)
	}

	closed := lines(mustRun(t, cfg, "tabs", "close", id))
	if len(closed) != 1 || strings.Contains(closed[0], id) {
		t.Fatalf("expected %s closed, got %q", id, closed)
	}
	if _, err := runCLI(t, cfg, "tabs", "close", "0"); err == nil {
		t.Fatalf("expected closing the last tab to fail")
	}
}

func TestNavigationHistory(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "nav", "go", "/notes/1", "--label", "Note", "--icon", "note")
	mustRun(t, cfg, "nav", "go", "/notes/2")
	if got := strings.TrimSpace(mustRun(t, cfg, "nav", "back")); got != "/notes/1" {
		t.Fatalf("expected back to /notes/1, got %q", got)
	}
	history := lines(mustRun(t, cfg, "nav", "history"))
	want := []string{"  /home \"Home\" [home]", "> /notes/1 \"Note\" [note]", "  /notes/2"}
	if strings.Join(history, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected history %q", history)
	}
	if got := strings.TrimSpace(mustRun(t, cfg, "nav", "forward")); got != "/notes/2" {
		t.Fatalf("expected forward to /notes/2, got %q", got)
	}
	if _, err := runCLI(t, cfg, "nav", "forward"); err == nil {
		t.Fatalf("expected empty forward stack to fail")
	}
}

func TestTearOffOpensContext(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "tabs", "new")
	mustRun(t, cfg, "nav", "go", "/docs/7", "--label", "Doc")
	out := strings.Fields(mustRun(t, cfg, "tearoff", "1"))
	if len(out) != 2 || !strings.HasPrefix(out[0], "ctx-") || !strings.Contains(out[1], "/docs/7") {
		t.Fatalf("unexpected tearoff output %q", out)
	}
	src := lines(mustRun(t, cfg, "tabs", "list"))
	if len(src) != 1 {
		t.Fatalf("expected source window to keep one tab, got %q", src)
	}
	dst := lines(mustRun(t, cfg, "--context", out[0], "tabs", "list"))
	if len(dst) != 1 || !strings.Contains(dst[0], "/docs/7") || !strings.Contains(dst[0], `"Doc"`) {
		t.Fatalf("expected adopted tab in new context, got %q", dst)
	}
	windows := lines(mustRun(t, cfg, "windows"))
	if len(windows) != 2 {
		t.Fatalf("expected two recorded windows, got %q", windows)
	}
	if _, err := runCLI(t, cfg, "tearoff"); err == nil {
		t.Fatalf("expected tearoff without target to fail")
	}
}

func TestAuthLoginLogout(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "auth", "login")
	if got := strings.TrimSpace(mustRun(t, cfg, "auth", "status")); got != "signed in (just logged in)" {
		t.Fatalf("unexpected status %q", got)
	}
	if got := strings.TrimSpace(mustRun(t, cfg, "auth", "status")); got != "signed in" {
		t.Fatalf("expected login flag consumed once, got %q", got)
	}
	mustRun(t, cfg, "auth", "logout")
	if got := strings.TrimSpace(mustRun(t, cfg, "auth", "status")); got != "signed out" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestFolderAndMirrorCommands(t *testing.T) {
	cfg := writeTestConfig(t)
	dir := t.TempDir()
	if out := mustRun(t, cfg, "fs", "status"); !strings.Contains(out, "mode: browser") {
		t.Fatalf("expected browser mode before pick, got %q", out)
	}
	if _, err := runCLI(t, cfg, "fs", "pick"); err == nil {
		t.Fatalf("expected pick without input to be cancelled")
	}
	out := mustRun(t, cfg, "fs", "pick", "--dir", dir, "--yes")
	if !strings.Contains(out, dir) || !strings.Contains(out, "granted") {
		t.Fatalf("unexpected pick output %q", out)
	}
	root := filepath.Join(dir, "Quilix")
	if _, err := os.Stat(filepath.Join(root, "quilix-data.json")); err != nil {
		t.Fatalf("expected mirror file after pick: %v", err)
	}

	mustRun(t, cfg, "workspace", "add", "acme", "Acme", "Corp")
	if got := strings.TrimSpace(mustRun(t, cfg, "space", "add", "s1", "Plans/2026")); got != "Plans-2026" {
		t.Fatalf("unexpected folder name %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "Acme Corp", "Plans-2026")); err != nil {
		t.Fatalf("expected space folder: %v", err)
	}
	mustRun(t, cfg, "space", "rename", "s1", "Roadmap")
	if _, err := os.Stat(filepath.Join(root, "Acme Corp", "Roadmap")); err != nil {
		t.Fatalf("expected renamed space folder: %v", err)
	}
	if out := mustRun(t, cfg, "space", "list"); !strings.Contains(out, "Roadmap") {
		t.Fatalf("unexpected space list %q", out)
	}
	if out := mustRun(t, cfg, "mirror", "export"); strings.TrimSpace(out) != "exported" {
		t.Fatalf("unexpected export output %q", out)
	}
	if out := mustRun(t, cfg, "mirror", "import"); strings.TrimSpace(out) != "imported" {
		t.Fatalf("unexpected import output %q", out)
	}
	mustRun(t, cfg, "workspace", "rm", "acme")
	if _, err := os.Stat(filepath.Join(root, "Acme Corp")); err == nil {
		t.Fatalf("expected workspace folder removed")
	}

	mustRun(t, cfg, "fs", "disconnect")
	if out := mustRun(t, cfg, "fs", "status"); !strings.Contains(out, "mode: browser") {
		t.Fatalf("expected browser mode after disconnect, got %q", out)
	}
	if out := mustRun(t, cfg, "mirror", "export"); !strings.HasPrefix(out, "nothing exported") {
		t.Fatalf("unexpected export output %q", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if out := mustRun(t, path, "config", "init"); !strings.Contains(out, path) {
		t.Fatalf("unexpected init output %q", out)
	}
	if _, err := runCLI(t, path, "config", "init"); err == nil {
		t.Fatalf("expected existing config to be kept")
	}
	mustRun(t, path, "config", "init", "--force")
	if out := mustRun(t, path, "config", "show"); !strings.Contains(out, "config_version: 1") {
		t.Fatalf("unexpected config %q", out)
	}
	if _, err := runCLI(t, path, "--workspace", "Bad Id!", "config", "show"); err == nil {
		t.Fatalf("expected invalid workspace override to fail")
	}
}

func TestEventsFlagPrintsTabEvents(t *testing.T) {
	cfg := writeTestConfig(t)
	root := newRootCmd()
	var stderr bytes.Buffer
	root.SetArgs([]string{"-c", cfg, "--events", "tabs", "new"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("tabs new: %v", err)
	}
	if !strings.Contains(stderr.String(), " created /home") {
		t.Fatalf("expected created event on stderr, got %q", stderr.String())
	}
}
