package fsbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

const (
	// HandleSettingKey stores the key of the bound directory handle.
	HandleSettingKey = "fs.handle"
	// StorageModeSettingKey stores the active storage mode.
	StorageModeSettingKey = "storageMode"
	// DefaultRootName is the app directory created inside the picked directory.
	DefaultRootName = "Quilix"
)

// StorageMode is where the app keeps its primary data.
type StorageMode string

const (
	StorageModeBrowser    StorageMode = "browser"
	StorageModeFilesystem StorageMode = "filesystem"
)

// Settings persists the handle binding.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Options configures a Bridge.
type Options struct {
	RootName string
	Logger   pslog.Logger
}

// Bridge tracks one directory handle through its permission lifecycle.
type Bridge struct {
	platform Platform
	settings Settings
	rootName string
	log      pslog.Logger
	ensure   singleflight.Group

	mu     sync.Mutex
	handle DirectoryHandle
	state  State
}

// New constructs a Bridge. A nil or incomplete platform yields a bridge that reports unsupported.
func New(platform Platform, settings Settings, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	root := opts.RootName
	if root == "" {
		root = DefaultRootName
	}
	return &Bridge{
		platform: platform,
		settings: settings,
		rootName: root,
		log:      logger,
	}
}

// Supported reports whether filesystem mode is available at all.
func (b *Bridge) Supported() bool {
	return Supported(b.platform)
}

// State returns the current handle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RootName returns the name of the app directory.
func (b *Bridge) RootName() string {
	return b.rootName
}

func (b *Bridge) apply(e Event) State {
	b.mu.Lock()
	prev := b.state
	b.state = Next(prev, e)
	next := b.state
	b.mu.Unlock()
	if prev != next {
		b.log.Debug("fs bridge state", "from", prev.String(), "to", next.String(), "event", e.String())
	}
	return next
}

func (b *Bridge) setHandle(h DirectoryHandle) {
	b.mu.Lock()
	b.handle = h
	b.mu.Unlock()
}

// StorageMode returns the persisted storage mode, defaulting to browser.
func (b *Bridge) StorageMode(ctx context.Context) StorageMode {
	if b.settings == nil {
		return StorageModeBrowser
	}
	value, ok, err := b.settings.GetSetting(ctx, StorageModeSettingKey)
	if err != nil || !ok || value == "" {
		return StorageModeBrowser
	}
	return StorageMode(value)
}

// RequestDirectoryAccess prompts for a directory. It must run from a user
// gesture. On success the handle is persisted, the storage mode becomes
// filesystem, and the app root directory exists.
func (b *Bridge) RequestDirectoryAccess(ctx context.Context) (DirectoryHandle, error) {
	if !b.Supported() {
		return nil, schema.ErrUnsupported
	}
	h, err := b.platform.PickDirectory(ctx)
	if err != nil {
		if errors.Is(err, schema.ErrPickCancelled) {
			b.apply(EventPickCancelled)
			b.log.Info("fs bridge pick cancelled")
			return nil, err
		}
		return nil, fmt.Errorf("pick directory: %w", err)
	}
	b.apply(EventPicked)
	status, err := h.RequestPermission(ctx, ModeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("request permission: %w", err)
	}
	if status != PermissionGranted {
		b.apply(EventPermissionDenied)
		b.log.Warn("fs bridge permission refused", "dir", h.Name(), "status", string(status))
		return nil, schema.ErrPermissionDenied
	}
	b.apply(EventPermissionGranted)
	if _, err := h.Directory(ctx, b.rootName, true); err != nil {
		b.apply(EventProbeFailed)
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	b.apply(EventProbeOK)
	b.setHandle(h)
	if b.settings != nil {
		if err := b.settings.PutSetting(ctx, HandleSettingKey, h.Key()); err != nil {
			b.log.Warn("fs bridge handle persist failed", "err", err)
		}
		if err := b.settings.PutSetting(ctx, StorageModeSettingKey, string(StorageModeFilesystem)); err != nil {
			b.log.Warn("fs bridge storage mode persist failed", "err", err)
		}
	}
	b.log.Info("fs bridge directory bound", "dir", h.Name(), "key", h.Key())
	return h, nil
}

// VerifyPermission checks the grant on h. It prompts only when withRequest
// is true, which callers may do only from a user gesture.
func (b *Bridge) VerifyPermission(ctx context.Context, h DirectoryHandle, readWrite, withRequest bool) (bool, error) {
	if h == nil {
		return false, schema.ErrNoHandle
	}
	mode := ModeRead
	if readWrite {
		mode = ModeReadWrite
	}
	status, err := h.QueryPermission(ctx, mode)
	if err != nil {
		return false, fmt.Errorf("query permission: %w", err)
	}
	if status == PermissionGranted {
		return true, nil
	}
	if !withRequest {
		return false, nil
	}
	status, err = h.RequestPermission(ctx, mode)
	if err != nil {
		return false, fmt.Errorf("request permission: %w", err)
	}
	return status == PermissionGranted, nil
}

// EnsurePermittedHandle returns the bound handle without ever prompting.
// Unless the handle is already known-good it is re-verified and probed by
// listing its entries. Concurrent callers share one check.
func (b *Bridge) EnsurePermittedHandle(ctx context.Context) (DirectoryHandle, error) {
	b.mu.Lock()
	h, state := b.handle, b.state
	b.mu.Unlock()
	if h != nil && state.Usable() {
		return h, nil
	}
	v, err, shared := b.ensure.Do("ensure", func() (any, error) {
		return b.ensureSilently(ctx)
	})
	if shared {
		b.log.Trace("fs bridge ensure coalesced")
	}
	if err != nil {
		return nil, err
	}
	return v.(DirectoryHandle), nil
}

func (b *Bridge) ensureSilently(ctx context.Context) (DirectoryHandle, error) {
	h, err := b.storedHandle(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := b.VerifyPermission(ctx, h, true, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		b.apply(EventPermissionPrompt)
		b.log.Debug("fs bridge permission not granted", "dir", h.Name())
		return nil, schema.ErrPermissionDenied
	}
	b.apply(EventPermissionGranted)
	return b.probe(ctx, h)
}

func (b *Bridge) probe(ctx context.Context, h DirectoryHandle) (DirectoryHandle, error) {
	if _, err := h.Entries(ctx); err != nil {
		b.apply(EventProbeFailed)
		b.log.Warn("fs bridge probe failed", "dir", h.Name(), "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrStaleHandle, err)
	}
	b.apply(EventProbeOK)
	b.setHandle(h)
	return h, nil
}

// storedHandle returns the in-memory handle or revives the persisted one.
func (b *Bridge) storedHandle(ctx context.Context) (DirectoryHandle, error) {
	if !b.Supported() {
		return nil, schema.ErrUnsupported
	}
	b.mu.Lock()
	h := b.handle
	b.mu.Unlock()
	if h != nil {
		return h, nil
	}
	if b.settings == nil {
		return nil, schema.ErrNoHandle
	}
	key, ok, err := b.settings.GetSetting(ctx, HandleSettingKey)
	if err != nil {
		return nil, fmt.Errorf("read handle: %w", err)
	}
	if !ok || key == "" {
		return nil, schema.ErrNoHandle
	}
	h, err = b.platform.OpenHandle(ctx, key)
	if err != nil {
		b.apply(EventPicked)
		b.apply(EventProbeFailed)
		return nil, fmt.Errorf("%w: %v", schema.ErrStaleHandle, err)
	}
	b.apply(EventPicked)
	b.setHandle(h)
	return h, nil
}

// RequestPermissionWithGesture is the user-triggered recovery flow: revive
// the stored handle with a prompt and a probe, else fall back to a re-pick.
func (b *Bridge) RequestPermissionWithGesture(ctx context.Context) (DirectoryHandle, error) {
	if !b.Supported() {
		return nil, schema.ErrUnsupported
	}
	if h, err := b.storedHandle(ctx); err == nil {
		ok, err := b.VerifyPermission(ctx, h, true, true)
		if err == nil && ok {
			b.apply(EventPermissionGranted)
			if revived, err := b.probe(ctx, h); err == nil {
				b.log.Info("fs bridge handle revived", "dir", h.Name())
				return revived, nil
			}
		} else if err == nil {
			b.apply(EventPermissionDenied)
		}
		b.setHandle(nil)
	}
	b.log.Info("fs bridge falling back to re-pick")
	return b.RequestDirectoryAccess(ctx)
}

// Disconnect forgets the bound handle and returns to browser storage.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.setHandle(nil)
	b.apply(EventCleared)
	if b.settings == nil {
		return nil
	}
	if err := b.settings.DeleteSetting(ctx, HandleSettingKey); err != nil {
		return err
	}
	return b.settings.PutSetting(ctx, StorageModeSettingKey, string(StorageModeBrowser))
}

// Root returns the app directory under the bound handle without prompting.
func (b *Bridge) Root(ctx context.Context) (DirectoryHandle, error) {
	h, err := b.EnsurePermittedHandle(ctx)
	if err != nil {
		return nil, err
	}
	return h.Directory(ctx, b.rootName, true)
}
