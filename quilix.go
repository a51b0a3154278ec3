// Package quilix composes a window context: the local store, session and
// durable storage, the cross-window sync bus, the filesystem bridge and
// mirror, and the window itself.
package quilix

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/quilix/core"
	"pkt.systems/quilix/internal/appconfig"
	"pkt.systems/quilix/internal/eventbus"
	"pkt.systems/quilix/internal/fsbridge"
	"pkt.systems/quilix/internal/localstore"
	"pkt.systems/quilix/internal/persist"
	"pkt.systems/quilix/internal/syncbus"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/schema"
)

// DefaultContextID names the window context used when none is given.
const DefaultContextID = "main"

// Options configures Open.
type Options struct {
	Config appconfig.Config
	// ContextID names the window context; its session storage survives reloads.
	ContextID string
	// Prompter answers directory pickers and permission prompts. Nil disables picking.
	Prompter fsbridge.Prompter
	// Sinks observe tab events in addition to the runtime event bus.
	Sinks []core.EventSink
	// Channel overrides the configured sync channel.
	Channel syncbus.Channel
	// OnAuth observes auth messages received from other windows.
	OnAuth func(schema.AuthMessage)
}

// Runtime is one booted window context with its collaborators.
type Runtime struct {
	cfg       appconfig.Config
	contextID string
	log       pslog.Logger

	store    *localstore.Store
	sessions *persist.Store
	session  *webstorage.Session
	durable  webstorage.Storage
	channel  syncbus.Channel
	bus      *eventbus.Bus
	bridge   *fsbridge.Bridge
	mirror   *fsbridge.Mirror
	router   *contextRouter
	opener   *contextOpener
	window   *core.Window
	auth     *syncbus.AuthSync

	closers []func() error
	mu      sync.Mutex
	closed  bool
}

// Open boots the window context named by opts.ContextID.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	contextID := strings.TrimSpace(opts.ContextID)
	if contextID == "" {
		contextID = DefaultContextID
	}
	logger := pslog.Ctx(ctx).With("context", contextID)
	ctx = pslog.ContextWithLogger(ctx, logger)
	r := &Runtime{cfg: cfg, contextID: contextID, log: logger}
	if err := r.open(ctx, opts); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) open(ctx context.Context, opts Options) error {
	cfg := r.cfg
	r.store = localstore.OpenOrDegraded(cfg.StorePath, r.log)
	r.closers = append(r.closers, r.store.Close)
	if r.store.Degraded() {
		r.log.Warn("runtime local store degraded", "path", cfg.StorePath, "err", r.store.Err())
	}

	sessions, err := persist.NewStoreWithLogger(cfg.SessionDir, r.log)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	r.sessions = sessions
	session, err := webstorage.OpenSession(sessions, r.contextID, r.log)
	if err != nil {
		return fmt.Errorf("session storage: %w", err)
	}
	r.session = session

	if err := r.openDurable(ctx); err != nil {
		return err
	}
	if err := r.openChannel(ctx, opts.Channel); err != nil {
		return err
	}

	platform := fsbridge.NewNativePlatform(opts.Prompter, r.store.Durable())
	r.bridge = fsbridge.New(platform, r.store, fsbridge.Options{RootName: cfg.Mirror.RootDir, Logger: r.log})
	if cfg.Mirror.Enabled {
		r.mirror = fsbridge.NewMirror(r.bridge, r.store, fsbridge.MirrorOptions{
			FileName: cfg.Mirror.FileName,
			Debounce: cfg.MirrorDebounce(),
			LockPath: cfg.Mirror.LockPath,
			Logger:   r.log,
		})
		r.closers = append(r.closers, r.closeMirror)
		if _, err := r.mirror.Import(ctx); err != nil {
			r.log.Warn("runtime mirror import failed", "err", err)
		}
	}

	r.bus = eventbus.New(r.log)
	sinks := append([]core.EventSink{r.bus}, opts.Sinks...)
	r.router = newContextRouter(session, r.log)
	r.opener = newContextOpener(session, r.log)

	window, err := core.OpenWindow(ctx, core.WindowOptions{
		Config:      cfg.WindowConfig(),
		BootURL:     r.bootURL(ctx),
		WorkspaceID: schema.WorkspaceID(cfg.Workspace),
	}, core.WindowDeps{
		Session: session,
		Durable: r.durable,
		Tabs:    r.store,
		Router:  r.router,
		Opener:  r.opener,
		Sink:    newEventFanout(sinks...),
		Logger:  r.log,
	})
	if err != nil {
		return err
	}
	r.window = window
	if err := window.Resume(ctx); err != nil {
		r.log.Warn("runtime resume failed", "err", err)
	}

	auth, err := syncbus.NewAuthSync(syncbus.AuthSyncOptions{
		WindowID: window.ID(),
		Channel:  r.channel,
		Session:  session,
		Auth:     syncbus.StorageAuthenticator{Storage: r.durable},
		OnRemote: opts.OnAuth,
		Logger:   r.log,
	})
	if err != nil {
		return err
	}
	r.auth = auth
	r.log.Info("runtime opened", "window", window.ID(), "workspace", cfg.Workspace, "degraded", r.store.Degraded())
	return nil
}

func (r *Runtime) openDurable(ctx context.Context) error {
	switch r.cfg.Durable.Backend {
	case "", appconfig.DurableBackendStore:
		r.durable = r.store.Durable()
	case appconfig.DurableBackendRedis:
		durable, err := webstorage.NewRedis(ctx, r.cfg.Sync.RedisURL)
		if err != nil {
			return fmt.Errorf("durable storage: %w", err)
		}
		r.durable = durable
		r.closers = append(r.closers, durable.Close)
	default:
		return fmt.Errorf("unsupported durable backend %q", r.cfg.Durable.Backend)
	}
	return nil
}

func (r *Runtime) openChannel(ctx context.Context, override syncbus.Channel) error {
	if override != nil {
		r.channel = override
		return nil
	}
	switch r.cfg.Sync.Backend {
	case "", appconfig.SyncBackendHub:
		r.channel = syncbus.AcquireHub(hubKey(r.cfg), r.log)
	case appconfig.SyncBackendRedis:
		ch, err := syncbus.NewRedis(ctx, r.cfg.Sync.RedisURL, r.cfg.Sync.Channel, r.log)
		if err != nil {
			return fmt.Errorf("sync channel: %w", err)
		}
		r.channel = ch
	default:
		return fmt.Errorf("unsupported sync backend %q", r.cfg.Sync.Backend)
	}
	r.closers = append(r.closers, r.channel.Close)
	return nil
}

// hubKey names the in-process hub shared by every context on one state dir.
func hubKey(cfg appconfig.Config) string {
	if dir := strings.TrimSpace(cfg.StateDir); dir != "" {
		return filepath.Clean(dir)
	}
	return cfg.StorePath
}

// closeMirror exports pending store changes so the next Import does not
// bring back records changed or deleted in this context.
func (r *Runtime) closeMirror() error {
	defer r.mirror.Close()
	if _, err := r.mirror.Flush(context.Background()); err != nil {
		r.log.Warn("runtime mirror flush failed", "err", err)
	}
	return nil
}

// bootURL is the URL the context was left at, or the last route of any window.
func (r *Runtime) bootURL(ctx context.Context) string {
	if current := r.router.CurrentURL(); current != "" {
		return current
	}
	if route, ok := core.LastRoute(ctx, r.durable); ok {
		return route
	}
	return schema.HomeRoute
}

// ContextID returns the window context name.
func (r *Runtime) ContextID() string { return r.contextID }

// Config returns the configuration the runtime was opened with.
func (r *Runtime) Config() appconfig.Config { return r.cfg }

// Window returns the booted window.
func (r *Runtime) Window() *core.Window { return r.window }

// Store returns the local store.
func (r *Runtime) Store() *localstore.Store { return r.store }

// Durable returns the storage shared by all windows.
func (r *Runtime) Durable() webstorage.Storage { return r.durable }

// Session returns the session storage of this context.
func (r *Runtime) Session() *webstorage.Session { return r.session }

// Bus returns the tab event bus.
func (r *Runtime) Bus() *eventbus.Bus { return r.bus }

// Bridge returns the filesystem bridge.
func (r *Runtime) Bridge() *fsbridge.Bridge { return r.bridge }

// Mirror returns the filesystem mirror, or nil when disabled.
func (r *Runtime) Mirror() *fsbridge.Mirror { return r.mirror }

// Auth returns the cross-window auth sync.
func (r *Runtime) Auth() *syncbus.AuthSync { return r.auth }

// URL returns the URL the window is showing.
func (r *Runtime) URL() string { return r.router.CurrentURL() }

// OpenedContexts returns the contexts spawned by this runtime.
func (r *Runtime) OpenedContexts() []OpenedContext { return r.opener.Opened() }

// Run keeps the background workers of the context alive until ctx ends:
// the auth listener and, in filesystem mode, the mirror writer and watcher.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.auth.Start(ctx); err != nil {
		return err
	}
	defer r.auth.Stop()
	var wg sync.WaitGroup
	if r.mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warn("runtime mirror stopped", "err", err)
			}
		}()
		if r.bridge.StorageMode(ctx) == fsbridge.StorageModeFilesystem {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.mirror.WatchFile(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.log.Debug("runtime mirror watch stopped", "err", err)
				}
			}()
		}
	}
	r.log.Info("runtime running")
	<-ctx.Done()
	wg.Wait()
	r.log.Info("runtime stopped")
	return nil
}

// Close flushes pending writes and releases every resource.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	if r.auth != nil {
		r.auth.Stop()
	}
	if r.window != nil {
		r.window.Close()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
