package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/logx"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/internal/windowid"
	"pkt.systems/quilix/schema"
)

// LastRouteKey remembers the last visited route in durable storage.
const LastRouteKey = "quilix.lastRoute"

// WindowOptions configures OpenWindow.
type WindowOptions struct {
	Config      schema.WindowConfig
	BootURL     string
	WorkspaceID schema.WorkspaceID
}

// Window is one window context: identity, tab session, navigation history and tear-off.
type Window struct {
	id      schema.WindowID
	boot    windowid.BootResult
	cfg     schema.WindowConfig
	session *TabSession
	history *NavHistory
	tearOff *TearOff
	durable webstorage.Storage
	router  Router
	repo    TabRepository
	log     pslog.Logger
}

// OpenWindow runs the boot sequence of a window context: identity
// correction, history restore, tab load with tear-off adoption.
func OpenWindow(ctx context.Context, opts WindowOptions, deps WindowDeps) (*Window, error) {
	cfg, err := schema.NormalizeWindowConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	if deps.Session == nil || deps.Durable == nil || deps.Tabs == nil || deps.Router == nil {
		return nil, fmt.Errorf("open window: %w", schema.ErrInvalidRequest)
	}
	if err := schema.ValidateWorkspaceID(opts.WorkspaceID); err != nil {
		return nil, err
	}
	if deps.Logger != nil {
		ctx = pslog.ContextWithLogger(ctx, deps.Logger)
	}
	boot, err := windowid.Boot(ctx, deps.Session, opts.BootURL)
	if err != nil {
		return nil, fmt.Errorf("window identity: %w", err)
	}
	base := pslog.Ctx(ctx)
	log := logx.WithWindow(ctx, boot.WindowID)
	ctx = logx.ContextWithWindowLogger(ctx, log, boot.WindowID)

	history := NewNavHistory(boot.WindowID, deps.Session, cfg.HistoryMax, base)
	history.Restore(ctx)

	tearOff := NewTearOff(deps.Durable, deps.Opener, cfg, log)
	session, err := NewTabSession(boot.WindowID, SessionDeps{
		Tabs:      deps.Tabs,
		Router:    deps.Router,
		Transfers: tearOff,
		Sink:      deps.Sink,
		Logger:    base,
	})
	if err != nil {
		return nil, err
	}

	w := &Window{
		id:      boot.WindowID,
		boot:    boot,
		cfg:     cfg,
		session: session,
		history: history,
		tearOff: tearOff,
		durable: deps.Durable,
		router:  deps.Router,
		repo:    deps.Tabs,
		log:     log,
	}
	if err := w.load(ctx, opts.WorkspaceID, boot.TearOff); err != nil {
		session.Close()
		return nil, err
	}
	w.recordSession(ctx)
	log.Info("window opened", "workspace", opts.WorkspaceID, "corrected", boot.Corrected, "tabs", len(session.Tabs()))
	return w, nil
}

func (w *Window) load(ctx context.Context, workspaceID schema.WorkspaceID, token schema.TransferToken) error {
	res, err := w.session.LoadTabs(ctx, workspaceID, token)
	if err != nil {
		return err
	}
	if res.Adopted != nil && res.Adopted.HistoryPayload != "" {
		if err := w.history.InjectSingleTabHistory(ctx, res.Adopted.TabID, res.Adopted.HistoryPayload); err != nil {
			w.log.Warn("window history adoption failed", "tab", res.Adopted.TabID, "err", err)
		}
	}
	return nil
}

// ID returns the window identity.
func (w *Window) ID() schema.WindowID { return w.id }

// Boot returns the identity resolution of the boot sequence.
func (w *Window) Boot() windowid.BootResult { return w.boot }

// Session returns the tab session.
func (w *Window) Session() *TabSession { return w.session }

// History returns the navigation history.
func (w *Window) History() *NavHistory { return w.history }

// Tabs returns the tabs of the window in display order.
func (w *Window) Tabs() []schema.Tab { return w.session.Tabs() }

// ActiveTab returns the active tab.
func (w *Window) ActiveTab() (schema.Tab, bool) { return w.session.ActiveTab() }

// LoadWorkspace switches the window to another workspace.
func (w *Window) LoadWorkspace(ctx context.Context, workspaceID schema.WorkspaceID) error {
	if err := w.load(ctx, workspaceID, ""); err != nil {
		return err
	}
	w.recordSession(ctx)
	return nil
}

// Navigate loads target in the active tab.
func (w *Window) Navigate(ctx context.Context, target string, state schema.TabState) error {
	if err := w.router.Navigate(ctx, target); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	w.Navigated(ctx, target, state)
	return nil
}

// Navigated is the completed-navigation hook: it updates the active tab's
// route metadata first and then the tab history.
func (w *Window) Navigated(ctx context.Context, target string, state schema.TabState) {
	if state.Route == "" {
		state.Route = target
	}
	tab, ok := w.session.UpdateActiveTabRoute(ctx, state)
	if !ok {
		w.log.Debug("window navigation without active tab", "url", target)
		return
	}
	w.history.OnNavigated(ctx, tab.ID, target, tab.State())
	if err := w.durable.Set(ctx, LastRouteKey, target); err != nil {
		w.log.Warn("window last route persist failed", "err", err)
	}
}

// LastRoute returns the last visited route of any window.
func LastRoute(ctx context.Context, durable webstorage.Storage) (string, bool) {
	value, ok, err := durable.Get(ctx, LastRouteKey)
	if err != nil || !ok || value == "" {
		return "", false
	}
	return value, true
}

// Resume performs the initial navigation to the active tab after boot. A
// reload that shows the current history entry again is not recorded.
func (w *Window) Resume(ctx context.Context) error {
	tab, ok := w.session.ActiveTab()
	if !ok {
		return schema.ErrNotLoaded
	}
	current := w.router.CurrentURL()
	if top, ok := w.history.Current(tab.ID); ok && !w.boot.Corrected && current != "" && current == top.URL {
		if err := w.router.Navigate(ctx, current); err != nil {
			return fmt.Errorf("navigate %s: %w", current, err)
		}
		w.log.Debug("window resumed", "tab", tab.ID, "url", current)
		return nil
	}
	return w.Navigate(ctx, tab.Route, tab.State())
}

// CreateTab opens a Home tab and navigates to it.
func (w *Window) CreateTab(ctx context.Context) (schema.Tab, error) {
	tab, err := w.session.CreateTab(ctx)
	if err != nil {
		return schema.Tab{}, err
	}
	if err := w.Navigate(ctx, tab.Route, tab.State()); err != nil {
		return tab, err
	}
	return tab, nil
}

// ActivateTab switches to tab id and navigates to its route.
func (w *Window) ActivateTab(ctx context.Context, id schema.TabID) (bool, error) {
	tab, ok := w.session.ActivateTab(ctx, id)
	if !ok {
		return false, nil
	}
	return true, w.Navigate(ctx, tab.Route, tab.State())
}

// CloseTab closes tab id, drops its history and navigates to the new active tab.
func (w *Window) CloseTab(ctx context.Context, id schema.TabID) (CloseResult, error) {
	res, err := w.session.CloseTab(ctx, id)
	if err != nil || !res.Closed {
		return res, err
	}
	w.history.Forget(ctx, id)
	if res.Route != "" {
		if tab, ok := w.session.Tab(res.NewActive); ok {
			return res, w.Navigate(ctx, res.Route, tab.State())
		}
	}
	return res, nil
}

// GoBack moves the active tab one entry back.
func (w *Window) GoBack(ctx context.Context) (bool, error) {
	return w.travel(ctx, w.history.GoBack)
}

// GoForward moves the active tab one entry forward.
func (w *Window) GoForward(ctx context.Context) (bool, error) {
	return w.travel(ctx, w.history.GoForward)
}

type travelFunc func(context.Context, schema.TabID, func(schema.TabState), func(string) error) (schema.HistoryEntry, bool, error)

func (w *Window) travel(ctx context.Context, step travelFunc) (bool, error) {
	tab, ok := w.session.ActiveTab()
	if !ok {
		return false, nil
	}
	_, moved, err := step(ctx, tab.ID,
		func(state schema.TabState) {
			w.session.UpdateTabState(ctx, tab.ID, state)
		},
		func(target string) error {
			current, _ := w.session.Tab(tab.ID)
			return w.Navigate(ctx, target, current.State())
		},
	)
	return moved, err
}

// TearOffTab moves tab id into a new window. The source tab is closed
// unless it is the last tab of this window.
func (w *Window) TearOffTab(ctx context.Context, id schema.TabID) (schema.TransferToken, error) {
	tab, ok := w.session.Tab(id)
	if !ok {
		return "", schema.ErrTabNotFound
	}
	payload, err := w.history.ExportSingleTabHistory(id)
	if err != nil {
		return "", err
	}
	token, err := w.tearOff.Initiate(ctx, tab.State(), payload)
	if err != nil {
		return "", err
	}
	if _, err := w.CloseTab(ctx, id); err != nil {
		w.log.Warn("window tear-off source close failed", "tab", id, "err", err)
	}
	return token, nil
}

// TearOffSpace opens a space in a new window.
func (w *Window) TearOffSpace(ctx context.Context, space schema.Space) (schema.TransferToken, error) {
	return w.tearOff.InitiateSpace(ctx, space)
}

// Close flushes pending writes.
func (w *Window) Close() {
	w.session.Close()
	w.log.Debug("window closed")
}

func (w *Window) recordSession(ctx context.Context) {
	recorder, ok := w.repo.(SessionRecorder)
	if !ok {
		return
	}
	now := schema.NowMillis(time.Now())
	rec, found, err := recorder.GetSession(ctx, w.id)
	if err != nil {
		w.log.Warn("window session lookup failed", "err", err)
	}
	if !found {
		rec = schema.SessionRecord{WindowID: w.id, OpenedAt: now}
	}
	rec.WorkspaceID = w.session.WorkspaceID()
	rec.LastSeenAt = now
	if err := recorder.PutSession(ctx, rec); err != nil {
		w.log.Warn("window session record failed", "err", err)
	}
}
