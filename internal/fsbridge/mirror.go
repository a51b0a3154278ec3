package fsbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/localstore"
	"pkt.systems/quilix/schema"
)

// DefaultFileName is the mirror file inside the app root directory.
const DefaultFileName = "quilix-data.json"

var mirrorTables = []localstore.Table{localstore.TableWorkspaces, localstore.TableSpaces, localstore.TableTabs}

// MirrorStore is the part of the Local Store the mirror reads and merges into.
type MirrorStore interface {
	Snapshot(ctx context.Context, now time.Time) (schema.MirrorState, error)
	Merge(ctx context.Context, state schema.MirrorState) (localstore.MergeStats, error)
	Watch(tables ...localstore.Table) (<-chan localstore.Change, func())
}

// MirrorOptions configures a Mirror.
type MirrorOptions struct {
	FileName string
	Debounce time.Duration
	// LockPath is an OS file used to serialize mirror writes across processes.
	LockPath string
	Logger   pslog.Logger
}

// Mirror keeps quilix-data.json in the app root directory in line with the store.
type Mirror struct {
	bridge   *Bridge
	store    MirrorStore
	fileName string
	debounce time.Duration
	lock     *flock.Flock
	log      pslog.Logger
	now      func() time.Time

	// changes tracks store mutations from construction on, so Flush works
	// without Run.
	changes     <-chan localstore.Change
	stopChanges func()

	mu        sync.Mutex
	lastWrite []byte
	dirty     bool
}

// NewMirror constructs a Mirror.
func NewMirror(bridge *Bridge, store MirrorStore, opts MirrorOptions) *Mirror {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	name := opts.FileName
	if name == "" {
		name = DefaultFileName
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = schema.DefaultMirrorDebounce
	}
	m := &Mirror{
		bridge:   bridge,
		store:    store,
		fileName: name,
		debounce: debounce,
		log:      logger,
		now:      time.Now,
	}
	if opts.LockPath != "" {
		m.lock = flock.New(opts.LockPath)
	}
	m.changes, m.stopChanges = store.Watch(mirrorTables...)
	return m
}

// Dirty reports whether the store changed since the last export.
func (m *Mirror) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absorbLocked()
	return m.dirty
}

func (m *Mirror) absorbLocked() {
	select {
	case _, ok := <-m.changes:
		if ok {
			m.dirty = true
		}
	default:
	}
}

// Flush exports the mirror when the store changed since the last export.
func (m *Mirror) Flush(ctx context.Context) (bool, error) {
	if !m.Dirty() {
		return false, nil
	}
	return m.Export(ctx)
}

// Close stops change tracking.
func (m *Mirror) Close() {
	m.stopChanges()
}

// FileName returns the mirror file name.
func (m *Mirror) FileName() string { return m.fileName }

// Export writes a full snapshot of the store to the mirror file. It reports
// false without error when filesystem mode is off or the handle is not usable.
func (m *Mirror) Export(ctx context.Context) (bool, error) {
	if m.bridge.StorageMode(ctx) != StorageModeFilesystem {
		return false, nil
	}
	root, err := m.bridge.Root(ctx)
	if err != nil {
		m.log.Debug("fs mirror export skipped", "err", err)
		return false, nil
	}
	m.mu.Lock()
	m.absorbLocked()
	m.dirty = false
	m.mu.Unlock()
	written := false
	defer func() {
		if !written {
			m.mu.Lock()
			m.dirty = true
			m.mu.Unlock()
		}
	}()
	state, err := m.store.Snapshot(ctx, m.now())
	if err != nil {
		return false, fmt.Errorf("snapshot store: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return false, err
	}
	unlock, err := m.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	if err := root.WriteFile(ctx, m.fileName, data); err != nil {
		return false, fmt.Errorf("write mirror: %w", err)
	}
	written = true
	m.mu.Lock()
	m.lastWrite = data
	m.mu.Unlock()
	m.log.Debug("fs mirror export ok",
		"workspaces", len(state.Workspaces),
		"spaces", len(state.Spaces),
		"tabs", len(state.Tabs),
	)
	return true, nil
}

// Import merges the mirror file into the store. A missing file reports false;
// a malformed file is logged and ignored.
func (m *Mirror) Import(ctx context.Context) (bool, error) {
	if m.bridge.StorageMode(ctx) != StorageModeFilesystem {
		return false, nil
	}
	root, err := m.bridge.Root(ctx)
	if err != nil {
		m.log.Debug("fs mirror import skipped", "err", err)
		return false, nil
	}
	data, err := root.ReadFile(ctx, m.fileName)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read mirror: %w", err)
	}
	return m.merge(ctx, data)
}

func (m *Mirror) merge(ctx context.Context, data []byte) (bool, error) {
	var state schema.MirrorState
	if err := json.Unmarshal(data, &state); err != nil {
		m.log.Warn("fs mirror import ignored malformed file", "file", m.fileName, "err", err)
		return false, nil
	}
	if state.Version != schema.MirrorVersion {
		m.log.Warn("fs mirror import ignored unknown version", "file", m.fileName, "version", state.Version)
		return false, nil
	}
	stats, err := m.store.Merge(ctx, state)
	if err != nil {
		return false, fmt.Errorf("merge mirror: %w", err)
	}
	m.log.Info("fs mirror import ok",
		"workspaces", stats.Workspaces,
		"spaces", stats.Spaces,
		"tabs", stats.Tabs,
	)
	return true, nil
}

// Run exports the mirror after every burst of store changes until ctx ends.
func (m *Mirror) Run(ctx context.Context) error {
	changes, cancel := m.store.Watch(mirrorTables...)
	defer cancel()
	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			if pending {
				m.exportLogged(context.WithoutCancel(ctx))
			}
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.debounce)
			pending = true
		case <-timer.C:
			pending = false
			m.exportLogged(ctx)
		}
	}
}

func (m *Mirror) exportLogged(ctx context.Context) {
	if _, err := m.Export(ctx); err != nil {
		m.log.Warn("fs mirror export failed", "err", err)
	}
}

// WatchFile re-imports the mirror file when another process rewrites it.
// It needs a handle backed by an OS directory.
func (m *Mirror) WatchFile(ctx context.Context) error {
	root, err := m.bridge.Root(ctx)
	if err != nil {
		return err
	}
	dir, ok := OSPath(root)
	if !ok {
		return schema.ErrUnsupported
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Join(dir, m.fileName)
	m.log.Debug("fs mirror watching", "path", target)

	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("fs mirror watch error", "err", err)
		case <-timer.C:
			pending = false
			m.reimport(ctx, root)
		}
	}
}

func (m *Mirror) reimport(ctx context.Context, root DirectoryHandle) {
	data, err := root.ReadFile(ctx, m.fileName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("fs mirror reimport read failed", "err", err)
		}
		return
	}
	m.mu.Lock()
	own := bytes.Equal(data, m.lastWrite)
	m.mu.Unlock()
	if own {
		m.log.Trace("fs mirror reimport skipped own write")
		return
	}
	if _, err := m.merge(ctx, data); err != nil {
		m.log.Warn("fs mirror reimport failed", "err", err)
	}
}

func (m *Mirror) acquire(ctx context.Context) (func(), error) {
	if m.lock == nil {
		return func() {}, nil
	}
	locked, err := m.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("mirror lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("mirror lock: %s busy", m.lock.Path())
	}
	return func() {
		if err := m.lock.Unlock(); err != nil {
			m.log.Warn("fs mirror unlock failed", "err", err)
		}
	}, nil
}
