// Package fsbridge binds the app to a user-picked native directory: it
// tracks the permission lifecycle of the directory handle, keeps workspace
// and space folders in step, and mirrors the local store into a JSON file.
package fsbridge

import (
	"context"
	"errors"
)

// AccessMode is the access requested on a directory handle.
type AccessMode string

const (
	ModeRead      AccessMode = "read"
	ModeReadWrite AccessMode = "readwrite"
)

// PermissionStatus is what a platform reports for a handle.
type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "granted"
	PermissionPrompt  PermissionStatus = "prompt"
	PermissionDenied  PermissionStatus = "denied"
)

// ErrNotFound is returned by handles for missing entries.
var ErrNotFound = errors.New("entry not found")

// Capabilities lists the primitives a platform exposes.
type Capabilities struct {
	DirectoryPicker bool
	PermissionQuery bool
}

// Platform exposes directory picking and handle revival.
type Platform interface {
	Capabilities() Capabilities
	// PickDirectory prompts the user for a directory. It requires a user gesture.
	PickDirectory(ctx context.Context) (DirectoryHandle, error)
	// OpenHandle revives a persisted handle without prompting.
	OpenHandle(ctx context.Context, key string) (DirectoryHandle, error)
}

// DirectoryHandle is a directory granted by the user.
type DirectoryHandle interface {
	Name() string
	// Key identifies the handle for persistence.
	Key() string
	QueryPermission(ctx context.Context, mode AccessMode) (PermissionStatus, error)
	// RequestPermission may prompt the user.
	RequestPermission(ctx context.Context, mode AccessMode) (PermissionStatus, error)
	Entries(ctx context.Context) ([]string, error)
	Directory(ctx context.Context, name string, create bool) (DirectoryHandle, error)
	Move(ctx context.Context, from, to string) error
	Remove(ctx context.Context, name string) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
}

// Supported reports whether p exposes both a directory picker and permission queries.
func Supported(p Platform) bool {
	if p == nil {
		return false
	}
	caps := p.Capabilities()
	return caps.DirectoryPicker && caps.PermissionQuery
}
