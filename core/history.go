package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/internal/windowid"
	"pkt.systems/quilix/schema"
)

// historyStack is the back/forward pair of one tab.
type historyStack struct {
	back    []schema.HistoryEntry
	forward []schema.HistoryEntry
	max     int
}

func newHistoryStack(max int, h schema.TabHistory) *historyStack {
	if max <= 0 {
		max = schema.DefaultHistoryMax
	}
	s := &historyStack{max: max}
	back := h.History
	if len(back) > max {
		back = back[len(back)-max:]
	}
	s.back = append([]schema.HistoryEntry{}, back...)
	s.forward = append([]schema.HistoryEntry{}, h.Forward...)
	return s
}

// push records a forward navigation. It reports false when entry repeats the current URL.
func (s *historyStack) push(entry schema.HistoryEntry) bool {
	if n := len(s.back); n > 0 && s.back[n-1].URL == entry.URL {
		return false
	}
	s.back = append(s.back, entry)
	if len(s.back) > s.max {
		s.back = s.back[len(s.back)-s.max:]
	}
	s.forward = s.forward[:0]
	return true
}

func (s *historyStack) back1() (schema.HistoryEntry, bool) {
	if len(s.back) <= 1 {
		return schema.HistoryEntry{}, false
	}
	current := s.back[len(s.back)-1]
	s.back = s.back[:len(s.back)-1]
	s.forward = append(s.forward, current)
	return s.back[len(s.back)-1], true
}

func (s *historyStack) forward1() (schema.HistoryEntry, bool) {
	if len(s.forward) == 0 {
		return schema.HistoryEntry{}, false
	}
	next := s.forward[len(s.forward)-1]
	s.forward = s.forward[:len(s.forward)-1]
	s.back = append(s.back, next)
	return next, true
}

func (s *historyStack) snapshot() schema.TabHistory {
	return schema.TabHistory{
		History: append([]schema.HistoryEntry{}, s.back...),
		Forward: append([]schema.HistoryEntry{}, s.forward...),
	}
}

// NavHistory is the per-window navigation history of every tab. The whole
// map is written to session storage after each mutation.
type NavHistory struct {
	windowID schema.WindowID
	storage  webstorage.Storage
	max      int
	log      pslog.Logger

	mu        sync.Mutex
	stacks    map[schema.TabID]*historyStack
	traveling bool

	// persistMu orders snapshot and write so a newer map is never overwritten by an older one.
	persistMu sync.Mutex
}

// NewNavHistory constructs an empty history bound to session storage.
func NewNavHistory(windowID schema.WindowID, storage webstorage.Storage, max int, logger pslog.Logger) *NavHistory {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if max <= 0 {
		max = schema.DefaultHistoryMax
	}
	return &NavHistory{
		windowID: windowID,
		storage:  storage,
		max:      max,
		log:      logger.With("window", windowID),
		stacks:   make(map[schema.TabID]*historyStack),
	}
}

// Restore loads the persisted map. A malformed map is logged and discarded.
func (h *NavHistory) Restore(ctx context.Context) {
	raw, ok, err := h.storage.Get(ctx, windowid.HistoryKey)
	if err != nil {
		h.log.Warn("history restore failed", "err", err)
		return
	}
	if !ok || raw == "" {
		h.log.Trace("history restore empty")
		return
	}
	var persisted map[schema.TabID]schema.TabHistory
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		h.log.Warn("history restore discarded", "err", err)
		return
	}
	h.mu.Lock()
	h.stacks = make(map[schema.TabID]*historyStack, len(persisted))
	for id, th := range persisted {
		h.stacks[id] = newHistoryStack(h.max, th)
	}
	h.mu.Unlock()
	h.log.Debug("history restore ok", "tabs", len(persisted))
}

// OnNavigated records a completed navigation of tabID. A navigation caused by
// GoBack or GoForward consumes the traveling flag and is not recorded.
func (h *NavHistory) OnNavigated(ctx context.Context, tabID schema.TabID, url string, state schema.TabState) {
	h.mu.Lock()
	if h.traveling {
		h.traveling = false
		h.mu.Unlock()
		h.log.Trace("history travel landed", "tab", tabID, "url", url)
		return
	}
	stack := h.stackLocked(tabID)
	pushed := stack.push(schema.HistoryEntry{URL: url, Snapshot: state})
	h.mu.Unlock()
	if pushed {
		h.persist(ctx)
	}
}

// GoBack moves tabID one entry back. restore receives the entry's tab metadata
// before navigate is asked to load its URL. It reports false when there is nowhere to go.
func (h *NavHistory) GoBack(ctx context.Context, tabID schema.TabID, restore func(schema.TabState), navigate func(string) error) (schema.HistoryEntry, bool, error) {
	return h.travel(ctx, tabID, (*historyStack).back1, restore, navigate)
}

// GoForward is the mirror of GoBack.
func (h *NavHistory) GoForward(ctx context.Context, tabID schema.TabID, restore func(schema.TabState), navigate func(string) error) (schema.HistoryEntry, bool, error) {
	return h.travel(ctx, tabID, (*historyStack).forward1, restore, navigate)
}

func (h *NavHistory) travel(ctx context.Context, tabID schema.TabID, step func(*historyStack) (schema.HistoryEntry, bool), restore func(schema.TabState), navigate func(string) error) (schema.HistoryEntry, bool, error) {
	h.mu.Lock()
	stack := h.stacks[tabID]
	if stack == nil {
		h.mu.Unlock()
		return schema.HistoryEntry{}, false, nil
	}
	entry, ok := step(stack)
	if !ok {
		h.mu.Unlock()
		return schema.HistoryEntry{}, false, nil
	}
	h.traveling = navigate != nil
	h.mu.Unlock()
	h.persist(ctx)
	if restore != nil {
		restore(entry.Snapshot)
	}
	if navigate != nil {
		if err := navigate(entry.URL); err != nil {
			h.mu.Lock()
			h.traveling = false
			h.mu.Unlock()
			return entry, true, fmt.Errorf("navigate %s: %w", entry.URL, err)
		}
	}
	return entry, true, nil
}

// Get returns a copy of the history of tabID.
func (h *NavHistory) Get(tabID schema.TabID) schema.TabHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stack := h.stacks[tabID]; stack != nil {
		return stack.snapshot()
	}
	return schema.TabHistory{History: []schema.HistoryEntry{}, Forward: []schema.HistoryEntry{}}
}

// Current returns the entry tabID is showing.
func (h *NavHistory) Current(tabID schema.TabID) (schema.HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.stacks[tabID]
	if stack == nil || len(stack.back) == 0 {
		return schema.HistoryEntry{}, false
	}
	return stack.back[len(stack.back)-1], true
}

// Tabs returns the number of tabs with recorded history.
func (h *NavHistory) Tabs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stacks)
}

// Forget drops the history of a closed tab.
func (h *NavHistory) Forget(ctx context.Context, tabID schema.TabID) {
	h.mu.Lock()
	_, ok := h.stacks[tabID]
	delete(h.stacks, tabID)
	h.mu.Unlock()
	if ok {
		h.persist(ctx)
	}
}

// ExportSingleTabHistory serializes the history of one tab for a tear-off.
func (h *NavHistory) ExportSingleTabHistory(tabID schema.TabID) (string, error) {
	data, err := json.Marshal(h.Get(tabID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InjectSingleTabHistory replaces the whole history map with payload keyed
// under newTabID. A torn-off window owns exactly one tab when this runs.
func (h *NavHistory) InjectSingleTabHistory(ctx context.Context, newTabID schema.TabID, payload string) error {
	var th schema.TabHistory
	if err := json.Unmarshal([]byte(payload), &th); err != nil {
		h.log.Warn("history inject discarded", "tab", newTabID, "err", err)
		return fmt.Errorf("%w: %v", schema.ErrMalformedPayload, err)
	}
	h.mu.Lock()
	h.stacks = map[schema.TabID]*historyStack{newTabID: newHistoryStack(h.max, th)}
	h.traveling = false
	h.mu.Unlock()
	h.persist(ctx)
	h.log.Info("history injected", "tab", newTabID, "entries", len(th.History), "forward", len(th.Forward))
	return nil
}

func (h *NavHistory) persist(ctx context.Context) {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()
	h.mu.Lock()
	out := make(map[schema.TabID]schema.TabHistory, len(h.stacks))
	for id, stack := range h.stacks {
		out[id] = stack.snapshot()
	}
	h.mu.Unlock()
	data, err := json.Marshal(out)
	if err != nil {
		h.log.Warn("history persist failed", "err", err)
		return
	}
	if err := h.storage.Set(ctx, windowid.HistoryKey, string(data)); err != nil {
		h.log.Warn("history persist failed", "err", err)
	}
}

func (h *NavHistory) stackLocked(tabID schema.TabID) *historyStack {
	stack := h.stacks[tabID]
	if stack == nil {
		stack = newHistoryStack(h.max, schema.TabHistory{})
		h.stacks[tabID] = stack
	}
	return stack
}
