package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/localstore"
	"pkt.systems/quilix/internal/logx"
	"pkt.systems/quilix/internal/windowid"
	"pkt.systems/quilix/schema"
)

// ActiveTabKey is the setting that remembers the active tab of a window in a workspace.
func ActiveTabKey(workspaceID schema.WorkspaceID, windowID schema.WindowID) string {
	return fmt.Sprintf("activeTab:%s:%s", workspaceID, windowID)
}

// TransferSource hands out pending tear-off payloads.
type TransferSource interface {
	Consume(ctx context.Context, token schema.TransferToken) (schema.TransferPayload, bool)
}

// SessionDeps captures the collaborators of a tab session.
type SessionDeps struct {
	Tabs      TabRepository
	Router    Router
	Transfers TransferSource
	Sink      EventSink
	Logger    pslog.Logger
}

// Adoption is a tab synthesized from a tear-off payload whose history still
// has to be handed to the navigation history.
type Adoption struct {
	TabID          schema.TabID
	HistoryPayload string
}

// LoadResult reports what LoadTabs did beyond reading the tab list.
type LoadResult struct {
	Adopted *Adoption
	// Synthesized is true when a default tab had to be created.
	Synthesized bool
}

// CloseResult reports the outcome of CloseTab.
type CloseResult struct {
	Closed bool
	// Route is set when the closed tab was active and the caller should navigate.
	Route     string
	NewActive schema.TabID
}

// TabSession holds the tabs of one (workspace, window) pair and the active tab.
// State changes apply immediately; persistence runs on a single writer.
type TabSession struct {
	windowID  schema.WindowID
	repo      TabRepository
	router    Router
	transfers TransferSource
	sink      EventSink
	log       pslog.Logger
	queue     *writeQueue
	now       func() time.Time

	mu          sync.Mutex
	workspaceID schema.WorkspaceID
	tabs        []schema.Tab
	active      schema.TabID
	loaded      bool
}

// NewTabSession constructs an empty, unloaded session for windowID.
func NewTabSession(windowID schema.WindowID, deps SessionDeps) (*TabSession, error) {
	if windowID == "" || deps.Tabs == nil {
		return nil, schema.ErrInvalidRequest
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	sink := deps.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &TabSession{
		windowID:  windowID,
		repo:      deps.Tabs,
		router:    deps.Router,
		transfers: deps.Transfers,
		sink:      sink,
		log:       logger.With("window", windowID),
		queue:     newWriteQueue(0),
		now:       time.Now,
	}, nil
}

// WindowID returns the window the session belongs to.
func (s *TabSession) WindowID() schema.WindowID {
	return s.windowID
}

// WorkspaceID returns the loaded workspace.
func (s *TabSession) WorkspaceID() schema.WorkspaceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceID
}

// Tabs returns the tabs in display order.
func (s *TabSession) Tabs() []schema.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.Tab(nil), s.tabs...)
}

// ActiveTab returns the active tab.
func (s *TabSession) ActiveTab() (schema.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(s.active)
	if idx < 0 {
		return schema.Tab{}, false
	}
	return s.tabs[idx], true
}

// Tab returns the tab with id.
func (s *TabSession) Tab(id schema.TabID) (schema.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return schema.Tab{}, false
	}
	return s.tabs[idx], true
}

// LoadTabs loads the tabs of workspaceID for this window. A non-empty token
// is a pending tear-off transfer: its payload becomes a new tab and is deleted,
// and the token is stripped from the current URL.
func (s *TabSession) LoadTabs(ctx context.Context, workspaceID schema.WorkspaceID, token schema.TransferToken) (LoadResult, error) {
	if err := schema.ValidateWorkspaceID(workspaceID); err != nil {
		return LoadResult{}, err
	}
	log := logx.WithWorkspace(s.log, workspaceID)
	s.queue.flush()

	tabs, err := s.repo.TabsByWindow(ctx, workspaceID, s.windowID)
	if err != nil {
		log.Warn("tab session load failed", "err", err)
		tabs = nil
	}
	var result LoadResult
	var adopted schema.TabID

	if token != "" {
		if s.transfers != nil {
			if payload, ok := s.transfers.Consume(ctx, token); ok {
				tab := s.newTab(workspaceID, payload.TabState, 0)
				if err := s.repo.PutTab(ctx, tab); err != nil {
					log.Warn("tab session adopt persist failed", "tab", tab.ID, "err", err)
				}
				tabs = append(tabs, tab)
				adopted = tab.ID
				result.Adopted = &Adoption{TabID: tab.ID, HistoryPayload: payload.HistoryPayload}
				log.Info("tab session tear-off adopted", "tab", tab.ID, "route", tab.Route, "token", token)
			}
		}
		if s.router != nil {
			s.router.ReplaceURL(windowid.StripTearOffToken(s.router.CurrentURL()))
		}
	}

	if len(tabs) == 0 {
		tab := s.newTab(workspaceID, schema.HomeTabState(), 0)
		if err := s.repo.PutTab(ctx, tab); err != nil {
			log.Warn("tab session default persist failed", "tab", tab.ID, "err", err)
		}
		tabs = append(tabs, tab)
		result.Synthesized = true
		log.Debug("tab session default tab created", "tab", tab.ID)
	}
	localstore.SortTabs(tabs)

	active := adopted
	if active == "" {
		stored, ok, err := s.repo.GetSetting(ctx, ActiveTabKey(workspaceID, s.windowID))
		if err != nil {
			log.Warn("tab session active restore failed", "err", err)
		}
		if ok && containsTab(tabs, schema.TabID(stored)) {
			active = schema.TabID(stored)
		} else {
			active = tabs[0].ID
		}
	}

	s.mu.Lock()
	s.workspaceID = workspaceID
	s.tabs = tabs
	s.active = active
	s.loaded = true
	if adopted != "" {
		s.persistActiveLocked()
	}
	event := s.eventLocked(schema.TabEventLoaded, active)
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	log.Info("tab session loaded", "tabs", len(tabs), "active", active)
	return result, nil
}

// CreateTab appends a Home tab after the last one and activates it.
func (s *TabSession) CreateTab(ctx context.Context) (schema.Tab, error) {
	return s.createTab(ctx, schema.HomeTabState())
}

// CreateTabWithState appends a tab showing state and activates it.
func (s *TabSession) CreateTabWithState(ctx context.Context, state schema.TabState) (schema.Tab, error) {
	if state.Route == "" {
		state = schema.HomeTabState()
	}
	return s.createTab(ctx, state)
}

func (s *TabSession) createTab(ctx context.Context, state schema.TabState) (schema.Tab, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return schema.Tab{}, schema.ErrNotLoaded
	}
	order := 0
	for i, tab := range s.tabs {
		if i == 0 || tab.Order >= order {
			order = tab.Order + 1
		}
	}
	tab := s.newTab(s.workspaceID, state, order)
	s.tabs = append(s.tabs, tab)
	localstore.SortTabs(s.tabs)
	s.active = tab.ID
	s.persistTabsLocked(ctx, tab)
	s.persistActiveLocked()
	event := s.eventLocked(schema.TabEventCreated, tab.ID)
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	s.log.Info("tab session tab created", "tab", tab.ID, "order", tab.Order)
	return tab, nil
}

// ActivateTab makes id the active tab. Unknown ids are ignored.
func (s *TabSession) ActivateTab(ctx context.Context, id schema.TabID) (schema.Tab, bool) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.log.Debug("tab session activate ignored", "tab", id)
		return schema.Tab{}, false
	}
	tab := s.tabs[idx]
	s.active = id
	s.persistActiveLocked()
	event := s.eventLocked(schema.TabEventActivated, id)
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	s.log.Debug("tab session tab activated", "tab", id)
	return tab, true
}

// CloseTab deletes a tab. Closing the last tab is rejected without error.
// When the active tab closes, the tab now at its index (clamped) becomes
// active and its route is returned. Order values are not renumbered.
func (s *TabSession) CloseTab(ctx context.Context, id schema.TabID) (CloseResult, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return CloseResult{}, schema.ErrNotLoaded
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return CloseResult{}, schema.ErrTabNotFound
	}
	log := logx.WithTab(s.log, id)
	if len(s.tabs) == 1 {
		s.mu.Unlock()
		log.Debug("tab session close rejected", "reason", "last tab")
		return CloseResult{}, nil
	}
	closed := s.tabs[idx]
	s.tabs = append(s.tabs[:idx:idx], s.tabs[idx+1:]...)
	result := CloseResult{Closed: true}
	if s.active == id {
		next := s.tabs[min(idx, len(s.tabs)-1)]
		s.active = next.ID
		result.Route = next.Route
		result.NewActive = next.ID
		s.persistActiveLocked()
	}
	repo := s.repo
	s.queue.enqueue(func() {
		if err := repo.DeleteTab(context.WithoutCancel(ctx), id); err != nil {
			log.Warn("tab session delete failed", "err", err)
		}
	})
	event := schema.TabEvent{
		WindowID:    s.windowID,
		WorkspaceID: s.workspaceID,
		Type:        schema.TabEventClosed,
		Tab:         schema.TabSnapshot{Tab: closed},
		ActiveTab:   s.active,
	}
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	log.Info("tab session tab closed", "active", event.ActiveTab)
	return result, nil
}

// UpdateActiveTabRoute records new route metadata on the active tab. The
// in-memory state changes before this returns; the write is asynchronous.
func (s *TabSession) UpdateActiveTabRoute(ctx context.Context, state schema.TabState) (schema.Tab, bool) {
	s.mu.Lock()
	id := s.active
	s.mu.Unlock()
	return s.UpdateTabState(ctx, id, state)
}

// UpdateTabState records new route metadata on tab id.
func (s *TabSession) UpdateTabState(ctx context.Context, id schema.TabID, state schema.TabState) (schema.Tab, bool) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return schema.Tab{}, false
	}
	if s.tabs[idx].State() == state {
		tab := s.tabs[idx]
		s.mu.Unlock()
		return tab, true
	}
	tab := s.tabs[idx].WithState(state)
	s.tabs[idx] = tab
	s.persistTabsLocked(ctx, tab)
	event := s.eventLocked(schema.TabEventUpdated, id)
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	s.log.Trace("tab session route updated", "tab", id, "route", state.Route)
	return tab, true
}

// UpdateTabOrders assigns order = index to the listed tabs. Tabs missing
// from ids keep their relative order after the listed ones.
func (s *TabSession) UpdateTabOrders(ctx context.Context, ids []schema.TabID) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return schema.ErrNotLoaded
	}
	seen := make(map[schema.TabID]bool, len(ids))
	next := make([]schema.Tab, 0, len(s.tabs))
	for _, id := range ids {
		idx := s.indexLocked(id)
		if idx < 0 || seen[id] {
			continue
		}
		seen[id] = true
		next = append(next, s.tabs[idx])
	}
	for _, tab := range s.tabs {
		if !seen[tab.ID] {
			next = append(next, tab)
		}
	}
	for i := range next {
		next[i].Order = i
	}
	s.tabs = next
	s.persistTabsLocked(ctx, next...)
	event := s.eventLocked(schema.TabEventReordered, s.active)
	s.mu.Unlock()
	s.sink.OnTabEvent(event)
	s.log.Debug("tab session reordered", "tabs", len(next))
	return nil
}

// Flush waits for pending writes.
func (s *TabSession) Flush() {
	s.queue.flush()
}

// Close drains pending writes and stops the writer.
func (s *TabSession) Close() {
	s.queue.close()
}

func (s *TabSession) newTab(workspaceID schema.WorkspaceID, state schema.TabState, order int) schema.Tab {
	return schema.Tab{
		ID:          newTabID(),
		WorkspaceID: workspaceID,
		WindowID:    s.windowID,
		Order:       order,
		CreatedAt:   schema.NowMillis(s.now()),
	}.WithState(state)
}

func (s *TabSession) indexLocked(id schema.TabID) int {
	if id == "" {
		return -1
	}
	for i, tab := range s.tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

func (s *TabSession) eventLocked(kind schema.TabEventType, tabID schema.TabID) schema.TabEvent {
	event := schema.TabEvent{
		WindowID:    s.windowID,
		WorkspaceID: s.workspaceID,
		Type:        kind,
		ActiveTab:   s.active,
	}
	if idx := s.indexLocked(tabID); idx >= 0 {
		event.Tab = schema.TabSnapshot{Tab: s.tabs[idx], Active: s.tabs[idx].ID == s.active}
	}
	return event
}

func (s *TabSession) persistTabsLocked(ctx context.Context, tabs ...schema.Tab) {
	batch := append([]schema.Tab(nil), tabs...)
	repo := s.repo
	s.queue.enqueue(func() {
		if err := repo.PutTabs(context.WithoutCancel(ctx), batch); err != nil {
			s.log.Warn("tab session persist failed", "tabs", len(batch), "err", err)
		}
	})
}

func (s *TabSession) persistActiveLocked() {
	key := ActiveTabKey(s.workspaceID, s.windowID)
	value := string(s.active)
	repo := s.repo
	s.queue.enqueue(func() {
		if err := repo.PutSetting(context.Background(), key, value); err != nil {
			s.log.Warn("tab session active persist failed", "err", err)
		}
	})
}

func containsTab(tabs []schema.Tab, id schema.TabID) bool {
	if id == "" {
		return false
	}
	for _, tab := range tabs {
		if tab.ID == id {
			return true
		}
	}
	return false
}
