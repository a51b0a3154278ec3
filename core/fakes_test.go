package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/localstore"
	"pkt.systems/quilix/schema"
)

type fakeRouter struct {
	mu       sync.Mutex
	current  string
	visited  []string
	replaced []string
	fail     error
}

func newFakeRouter(current string) *fakeRouter {
	return &fakeRouter{current: current}
}

func (r *fakeRouter) Navigate(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.current = url
	r.visited = append(r.visited, url)
	return nil
}

func (r *fakeRouter) ReplaceURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = url
	r.replaced = append(r.replaced, url)
}

func (r *fakeRouter) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

type openedWindow struct {
	url      string
	features WindowFeatures
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []openedWindow
	fail   error
}

func (o *fakeOpener) Open(_ context.Context, url string, features WindowFeatures) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.opened = append(o.opened, openedWindow{url: url, features: features})
	return nil
}

func (o *fakeOpener) last() (openedWindow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return openedWindow{}, false
	}
	return o.opened[len(o.opened)-1], true
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.TabEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) types() []schema.TabEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.TabEventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

// failingRepo rejects every write, like a degraded store.
type failingRepo struct{}

func (failingRepo) TabsByWindow(context.Context, schema.WorkspaceID, schema.WindowID) ([]schema.Tab, error) {
	return nil, nil
}
func (failingRepo) PutTab(context.Context, schema.Tab) error     { return schema.ErrStoreUnavailable }
func (failingRepo) PutTabs(context.Context, []schema.Tab) error  { return schema.ErrStoreUnavailable }
func (failingRepo) DeleteTab(context.Context, schema.TabID) error { return schema.ErrStoreUnavailable }
func (failingRepo) GetSetting(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (failingRepo) PutSetting(context.Context, string, string) error {
	return schema.ErrStoreUnavailable
}

var errNavigation = errors.New("navigation aborted")

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "quilix.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func orders(tabs []schema.Tab) []int {
	out := make([]int, 0, len(tabs))
	for _, tab := range tabs {
		out = append(out, tab.Order)
	}
	return out
}

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *logCapture) contains(msg string) bool {
	return strings.Contains(c.String(), msg)
}

func testLogger(w io.Writer) pslog.Logger {
	return pslog.NewWithOptions(w, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.DebugLevel,
		VerboseFields: true,
	})
}
