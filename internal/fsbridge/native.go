package fsbridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"pkt.systems/quilix/internal/persist"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/schema"
)

// GrantKeyPrefix prefixes recorded directory grants in the grant storage.
const GrantKeyPrefix = "quilix.fs.grant:"

// Prompter asks the user for a directory and for access to it.
type Prompter interface {
	PickDirectory(ctx context.Context) (string, error)
	ConfirmAccess(ctx context.Context, path string, mode AccessMode) (bool, error)
}

// NativePlatform serves directory handles on the OS filesystem. Grants are
// remembered in a storage so a later process can use them without prompting;
// the OS is asked on every query whether access still holds.
type NativePlatform struct {
	prompter Prompter
	grants   webstorage.Storage
}

// NewNativePlatform constructs a platform. A nil prompter disables the picker.
func NewNativePlatform(prompter Prompter, grants webstorage.Storage) *NativePlatform {
	if grants == nil {
		grants = webstorage.NewMemory()
	}
	return &NativePlatform{prompter: prompter, grants: grants}
}

func (p *NativePlatform) Capabilities() Capabilities {
	return Capabilities{DirectoryPicker: p.prompter != nil, PermissionQuery: true}
}

func (p *NativePlatform) PickDirectory(ctx context.Context) (DirectoryHandle, error) {
	if p.prompter == nil {
		return nil, schema.ErrUnsupported
	}
	path, err := p.prompter.PickDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, schema.ErrPickCancelled
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &nativeHandle{platform: p, path: abs, top: abs}, nil
}

func (p *NativePlatform) OpenHandle(_ context.Context, key string) (DirectoryHandle, error) {
	if !filepath.IsAbs(key) {
		return nil, fmt.Errorf("invalid handle key %q", key)
	}
	return &nativeHandle{platform: p, path: key, top: key}, nil
}

type nativeHandle struct {
	platform *NativePlatform
	path     string
	// top is the directory the user granted; children share its grant.
	top string
}

func (h *nativeHandle) Name() string { return filepath.Base(h.path) }

func (h *nativeHandle) Key() string { return h.path }

func (h *nativeHandle) QueryPermission(ctx context.Context, mode AccessMode) (PermissionStatus, error) {
	granted, ok, err := h.platform.grants.Get(ctx, GrantKeyPrefix+h.top)
	if err != nil {
		return "", err
	}
	if !ok || !covers(AccessMode(granted), mode) {
		return PermissionPrompt, nil
	}
	if err := unix.Access(h.path, accessBits(mode)); err != nil {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (h *nativeHandle) RequestPermission(ctx context.Context, mode AccessMode) (PermissionStatus, error) {
	if status, err := h.QueryPermission(ctx, mode); err != nil || status == PermissionGranted {
		return status, err
	}
	if h.platform.prompter == nil {
		return PermissionDenied, nil
	}
	ok, err := h.platform.prompter.ConfirmAccess(ctx, h.top, mode)
	if err != nil {
		return "", err
	}
	if !ok {
		return PermissionDenied, nil
	}
	if err := unix.Access(h.path, accessBits(mode)); err != nil {
		return PermissionDenied, nil
	}
	if err := h.platform.grants.Set(ctx, GrantKeyPrefix+h.top, string(mode)); err != nil {
		return "", err
	}
	return PermissionGranted, nil
}

func (h *nativeHandle) Entries(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(h.path)
	if err != nil {
		return nil, mapNotExist(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (h *nativeHandle) Directory(_ context.Context, name string, create bool) (DirectoryHandle, error) {
	path, err := h.child(name)
	if err != nil {
		return nil, err
	}
	if create {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
	} else if info, err := os.Stat(path); err != nil {
		return nil, mapNotExist(err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return &nativeHandle{platform: h.platform, path: path, top: h.top}, nil
}

func (h *nativeHandle) Move(_ context.Context, from, to string) error {
	src, err := h.child(from)
	if err != nil {
		return err
	}
	dst, err := h.child(to)
	if err != nil {
		return err
	}
	return mapNotExist(os.Rename(src, dst))
}

func (h *nativeHandle) Remove(_ context.Context, name string) error {
	path, err := h.child(name)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(path); err != nil {
		return mapNotExist(err)
	}
	return os.RemoveAll(path)
}

func (h *nativeHandle) ReadFile(_ context.Context, name string) ([]byte, error) {
	path, err := h.child(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	return data, mapNotExist(err)
}

func (h *nativeHandle) WriteFile(_ context.Context, name string, data []byte) error {
	path, err := h.child(name)
	if err != nil {
		return err
	}
	return persist.WriteFileAtomic(path, data, 0o644)
}

// Path returns the OS path of the handle.
func (h *nativeHandle) Path() string { return h.path }

func (h *nativeHandle) child(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid entry name %q", name)
	}
	return filepath.Join(h.path, name), nil
}

// OSPath returns the OS path behind a native handle.
func OSPath(h DirectoryHandle) (string, bool) {
	p, ok := h.(interface{ Path() string })
	if !ok {
		return "", false
	}
	return p.Path(), true
}

func covers(granted, want AccessMode) bool {
	return granted == ModeReadWrite || granted == want
}

func accessBits(mode AccessMode) uint32 {
	if mode == ModeReadWrite {
		return unix.R_OK | unix.W_OK | unix.X_OK
	}
	return unix.R_OK | unix.X_OK
}

func mapNotExist(err error) error {
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// StaticPrompter answers prompts with fixed values.
type StaticPrompter struct {
	Dir   string
	Allow bool
}

func (s StaticPrompter) PickDirectory(context.Context) (string, error) {
	if s.Dir == "" {
		return "", schema.ErrPickCancelled
	}
	return s.Dir, nil
}

func (s StaticPrompter) ConfirmAccess(context.Context, string, AccessMode) (bool, error) {
	return s.Allow, nil
}
