package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"pkt.systems/quilix/internal/localstore"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/internal/windowid"
	"pkt.systems/quilix/schema"
)

type testWindowEnv struct {
	store  *localstore.Store
	opener *fakeOpener
}

func newTestWindowEnv(t *testing.T) *testWindowEnv {
	return &testWindowEnv{store: openTestStore(t), opener: &fakeOpener{}}
}

func (e *testWindowEnv) open(t *testing.T, session *webstorage.Memory, bootURL string) (*Window, *fakeRouter) {
	t.Helper()
	router := newFakeRouter(bootURL)
	w, err := OpenWindow(context.Background(), WindowOptions{BootURL: bootURL, WorkspaceID: "acme"}, WindowDeps{
		Session: session,
		Durable: e.store.Durable(),
		Tabs:    e.store,
		Router:  router,
		Opener:  e.opener,
	})
	if err != nil {
		t.Fatalf("open window: %v", err)
	}
	t.Cleanup(w.Close)
	if err := w.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	return w, router
}

func TestOpenWindowRequiresCollaborators(t *testing.T) {
	_, err := OpenWindow(context.Background(), WindowOptions{WorkspaceID: "acme"}, WindowDeps{})
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestWindowNavigationRecordsHistoryAndLastRoute(t *testing.T) {
	ctx := context.Background()
	env := newTestWindowEnv(t)
	w, router := env.open(t, webstorage.NewMemory(), "/home")

	if err := w.Navigate(ctx, "/notes/1", schema.TabState{Label: "Note 1", Icon: "note"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	active, _ := w.ActiveTab()
	if active.Route != "/notes/1" || active.Label != "Note 1" {
		t.Fatalf("unexpected active tab %+v", active)
	}
	hist := w.History().Get(active.ID)
	if len(hist.History) != 2 || hist.History[0].URL != schema.HomeRoute {
		t.Fatalf("unexpected history %+v", hist)
	}
	if route, ok := LastRoute(ctx, env.store.Durable()); !ok || route != "/notes/1" {
		t.Fatalf("expected last route, got %q", route)
	}

	moved, err := w.GoBack(ctx)
	if err != nil || !moved {
		t.Fatalf("go back: moved=%v err=%v", moved, err)
	}
	if router.CurrentURL() != schema.HomeRoute {
		t.Fatalf("expected router at home, got %q", router.CurrentURL())
	}
	if active, _ := w.ActiveTab(); active.Label != "Home" {
		t.Fatalf("expected restored label, got %+v", active)
	}
	hist = w.History().Get(active.ID)
	if len(hist.History) != 1 || len(hist.Forward) != 1 {
		t.Fatalf("travel must not record a new entry: %+v", hist)
	}
	if moved, err := w.GoForward(ctx); err != nil || !moved {
		t.Fatalf("go forward: moved=%v err=%v", moved, err)
	}
	if router.CurrentURL() != "/notes/1" {
		t.Fatalf("expected router at note, got %q", router.CurrentURL())
	}
}

func TestWindowReloadKeepsIdentityTabsAndHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestWindowEnv(t)
	session := webstorage.NewMemory()
	first, _ := env.open(t, session, "/home")
	if err := first.Navigate(ctx, "/a", schema.TabState{}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	tab, _ := first.CreateTab(ctx)
	first.Close()

	second, _ := env.open(t, session, "/a")
	if second.ID() != first.ID() {
		t.Fatalf("reload must keep identity")
	}
	if len(second.Tabs()) != 2 {
		t.Fatalf("expected tabs to survive reload, got %d", len(second.Tabs()))
	}
	if active, _ := second.ActiveTab(); active.ID != tab.ID {
		t.Fatalf("expected active tab restored")
	}
	if !reflect.DeepEqual(first.History().Get(tab.ID), second.History().Get(tab.ID)) {
		t.Fatalf("expected history restored from session storage")
	}
}

func TestWindowReloadDoesNotRecordQueryURLAgain(t *testing.T) {
	ctx := context.Background()
	env := newTestWindowEnv(t)
	session := webstorage.NewMemory()
	first, router := env.open(t, session, "/home")
	for _, url := range []string{"/a", "/b?x=1", "/c"} {
		if err := first.Navigate(ctx, url, schema.TabState{}); err != nil {
			t.Fatalf("navigate %s: %v", url, err)
		}
	}
	if moved, err := first.GoBack(ctx); err != nil || !moved {
		t.Fatalf("go back: moved=%v err=%v", moved, err)
	}
	tab, _ := first.ActiveTab()
	if tab.Route != "/b?x=1" {
		t.Fatalf("expected query kept in route, got %q", tab.Route)
	}
	before := first.History().Get(tab.ID)
	first.Close()

	second, reloaded := env.open(t, session, router.CurrentURL())
	after := second.History().Get(tab.ID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("reload changed history:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(after.Forward) != 1 || after.Forward[0].URL != "/c" {
		t.Fatalf("expected forward stack kept, got %+v", after.Forward)
	}
	if reloaded.CurrentURL() != "/b?x=1" {
		t.Fatalf("expected reload to show /b?x=1, got %q", reloaded.CurrentURL())
	}
	if moved, err := second.GoBack(ctx); err != nil || !moved {
		t.Fatalf("go back after reload: moved=%v err=%v", moved, err)
	}
	if reloaded.CurrentURL() != "/a" {
		t.Fatalf("expected back to /a, got %q", reloaded.CurrentURL())
	}
}

func TestWindowCloseTabNavigatesAndForgets(t *testing.T) {
	ctx := context.Background()
	env := newTestWindowEnv(t)
	w, router := env.open(t, webstorage.NewMemory(), "/home")
	home, _ := w.ActiveTab()
	if err := w.Navigate(ctx, "/inbox", schema.TabState{Label: "Inbox"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	second, err := w.CreateTab(ctx)
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	res, err := w.CloseTab(ctx, second.ID)
	if err != nil || !res.Closed || res.NewActive != home.ID {
		t.Fatalf("unexpected close %+v err=%v", res, err)
	}
	if router.CurrentURL() != "/inbox" {
		t.Fatalf("expected navigation to remaining tab, got %q", router.CurrentURL())
	}
	if w.History().Tabs() != 1 {
		t.Fatalf("expected closed tab history forgotten")
	}
}

func TestTearOffMovesTabIntoNewWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestWindowEnv(t)
	openerSession := webstorage.NewMemory()
	source, _ := env.open(t, openerSession, "/home")
	home, _ := source.ActiveTab()

	moving, err := source.CreateTab(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, url := range []string{"/spaces/s1", "/spaces/s1/doc"} {
		if err := source.Navigate(ctx, url, schema.TabState{Label: "Doc", Icon: "doc"}); err != nil {
			t.Fatalf("navigate: %v", err)
		}
	}
	wantHistory := source.History().Get(moving.ID)

	token, err := source.TearOffTab(ctx, moving.ID)
	if err != nil {
		t.Fatalf("tear off: %v", err)
	}
	opened, ok := env.opener.last()
	if !ok || windowid.TearOffToken(opened.url) != token || !strings.HasPrefix(opened.url, "/spaces/s1/doc?") {
		t.Fatalf("unexpected opened window %+v", opened)
	}
	if opened.features.Width != 1200 || opened.features.Height != 800 {
		t.Fatalf("unexpected window features %+v", opened.features)
	}
	if _, ok := source.Session().Tab(moving.ID); ok {
		t.Fatalf("expected source tab closed")
	}
	if active, _ := source.ActiveTab(); active.ID != home.ID {
		t.Fatalf("expected home tab active in source")
	}

	// window.open copies the opener's session storage.
	spawnedSession := openerSession.Clone()
	spawned, router := env.open(t, spawnedSession, opened.url)
	if spawned.ID() == source.ID() {
		t.Fatalf("expected corrected identity")
	}
	tabs := spawned.Tabs()
	if len(tabs) != 1 || tabs[0].Route != "/spaces/s1/doc" || tabs[0].Order != 0 || tabs[0].WindowID != spawned.ID() {
		t.Fatalf("unexpected adopted tabs %+v", tabs)
	}
	if got := spawned.History().Get(tabs[0].ID); !reflect.DeepEqual(got, wantHistory) {
		t.Fatalf("expected adopted history %+v, got %+v", wantHistory, got)
	}
	if spawned.History().Tabs() != 1 {
		t.Fatalf("inherited history must not leak into the spawned window")
	}
	if windowid.TearOffToken(router.CurrentURL()) != "" {
		t.Fatalf("expected token stripped, got %q", router.CurrentURL())
	}
	if _, ok, _ := env.store.Durable().Get(ctx, TransferKey(token)); ok {
		t.Fatalf("expected payload consumed")
	}
	if stored, _, _ := openerSession.Get(ctx, windowid.StorageKey); stored != string(source.ID()) {
		t.Fatalf("opener identity changed")
	}
}

func TestTearOffWithMissingPayloadFallsBackToHome(t *testing.T) {
	env := newTestWindowEnv(t)
	w, router := env.open(t, webstorage.NewMemory(), "/notes?tearOffId=missing")
	tabs := w.Tabs()
	if len(tabs) != 1 || tabs[0].Route != schema.HomeRoute {
		t.Fatalf("expected default tab, got %+v", tabs)
	}
	if windowid.TearOffToken(router.replaced[0]) != "" {
		t.Fatalf("expected token stripped")
	}
}

func TestTearOffOpenFailureRemovesPayload(t *testing.T) {
	ctx := context.Background()
	durable := webstorage.NewMemory()
	tearOff := NewTearOff(durable, &fakeOpener{fail: errors.New("popup blocked")}, schema.WindowConfig{}, nil)
	if _, err := tearOff.Initiate(ctx, state("/a"), "{}"); err == nil {
		t.Fatalf("expected open failure")
	}
	if keys := durable.Keys(); len(keys) != 0 {
		t.Fatalf("expected payload removed, got %v", keys)
	}

	env := newTestWindowEnv(t)
	w, _ := env.open(t, webstorage.NewMemory(), "/home")
	tab, _ := w.CreateTab(ctx)
	env.opener.fail = errors.New("popup blocked")
	if _, err := w.TearOffTab(ctx, tab.ID); err == nil {
		t.Fatalf("expected open failure")
	}
	if _, ok := w.Session().Tab(tab.ID); !ok {
		t.Fatalf("source tab must remain after a failed tear-off")
	}
}

func TestTearOffConsumeIsReadOnce(t *testing.T) {
	ctx := context.Background()
	durable := webstorage.NewMemory()
	opener := &fakeOpener{}
	tearOff := NewTearOff(durable, opener, schema.WindowConfig{TearOffWidth: 640, TearOffHeight: 480, TearOffPopup: true}, nil)
	token, err := tearOff.InitiateSpace(ctx, schema.Space{ID: "s9", Name: "Plans"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	opened, _ := opener.last()
	if !opened.features.Popup || opened.features.Width != 640 {
		t.Fatalf("unexpected features %+v", opened.features)
	}
	payload, ok := tearOff.Consume(ctx, token)
	if !ok || payload.TabState.Route != "/spaces/s9" || payload.TabState.Label != "Plans" {
		t.Fatalf("unexpected payload %+v ok=%v", payload, ok)
	}
	if _, ok := tearOff.Consume(ctx, token); ok {
		t.Fatalf("expected second consume to miss")
	}
}

func TestTearOffMalformedPayloadIsDropped(t *testing.T) {
	ctx := context.Background()
	durable := webstorage.NewMemoryFrom(map[string]string{TransferKey("bad"): "{"})
	tearOff := NewTearOff(durable, nil, schema.WindowConfig{}, nil)
	if _, err := tearOff.Load(ctx, "bad"); !errors.Is(err, schema.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
	if _, ok := tearOff.Consume(ctx, "bad"); ok {
		t.Fatalf("expected malformed payload dropped")
	}
	if len(durable.Keys()) != 0 {
		t.Fatalf("expected malformed payload deleted")
	}
}
