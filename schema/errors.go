package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidWorkspace indicates an invalid workspace identifier.
	ErrInvalidWorkspace = errors.New("invalid workspace")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNotLoaded indicates tabs were not loaded for the window yet.
	ErrNotLoaded = errors.New("tabs not loaded")
	// ErrStoreUnavailable indicates the local store failed to open.
	ErrStoreUnavailable = errors.New("local store unavailable")
	// ErrMalformedPayload indicates a persisted payload could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsupported indicates the platform lacks a required capability.
	ErrUnsupported = errors.New("capability not supported")
	// ErrNoHandle indicates no directory handle is stored.
	ErrNoHandle = errors.New("no directory handle")
	// ErrPermissionDenied indicates filesystem permission is not granted.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStaleHandle indicates a handle reports granted but fails on use.
	ErrStaleHandle = errors.New("stale directory handle")
	// ErrPickCancelled indicates the user dismissed the directory picker.
	ErrPickCancelled = errors.New("directory pick cancelled")
	// ErrChannelClosed indicates the sync channel was closed.
	ErrChannelClosed = errors.New("sync channel closed")
)
