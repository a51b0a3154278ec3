package webstorage

import (
	"context"
	"errors"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/persist"
)

// Session is session-scoped storage for one window context, written through
// to a snapshot file so it survives a reload of that context.
type Session struct {
	mem       *Memory
	store     *persist.Store
	contextID string
	base      pslog.Logger
	log       pslog.Logger
	now       func() time.Time
}

// OpenSession loads (or starts) the session storage of contextID.
// An unreadable snapshot is logged and replaced by an empty storage.
func OpenSession(store *persist.Store, contextID string, logger pslog.Logger) (*Session, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if strings.TrimSpace(contextID) == "" {
		return nil, errors.New("context id is required")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	log := logger.With("context", contextID)
	snapshot, ok, err := store.Load(contextID)
	if err != nil {
		log.Warn("session storage reset", "err", err)
		ok = false
	}
	mem := NewMemory()
	if ok {
		mem = NewMemoryFrom(snapshot.Values)
	}
	return &Session{mem: mem, store: store, contextID: contextID, base: logger, log: log, now: time.Now}, nil
}

// ContextID returns the window context this storage belongs to.
func (s *Session) ContextID() string {
	return s.contextID
}

func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	return s.mem.Get(ctx, key)
}

func (s *Session) Set(ctx context.Context, key, value string) error {
	_ = s.mem.Set(ctx, key, value)
	return s.flush()
}

func (s *Session) Remove(ctx context.Context, key string) error {
	_ = s.mem.Remove(ctx, key)
	return s.flush()
}

// Duplicate copies the whole storage into a new context, mirroring what a
// browser does when one window programmatically spawns another.
func (s *Session) Duplicate(contextID string) (*Session, error) {
	if strings.TrimSpace(contextID) == "" {
		return nil, errors.New("context id is required")
	}
	dup := &Session{
		mem:       s.mem.Clone(),
		store:     s.store,
		contextID: contextID,
		base:      s.base,
		log:       s.base.With("context", contextID),
		now:       s.now,
	}
	if err := dup.flush(); err != nil {
		return nil, err
	}
	s.log.Debug("session storage duplicated", "to", contextID)
	return dup, nil
}

// Close discards the storage, as closing a window does.
func (s *Session) Close() error {
	return s.store.Delete(s.contextID)
}

func (s *Session) flush() error {
	snapshot := persist.ContextSnapshot{Values: s.mem.Values(), UpdatedAt: s.now().UnixMilli()}
	return s.store.Save(s.contextID, snapshot)
}
