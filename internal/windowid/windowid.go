// Package windowid assigns each window context a durable identity and
// corrects identities inherited through window duplication.
package windowid

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/schema"
)

const (
	// StorageKey holds the window identity in session storage.
	StorageKey = "quilix.windowId"
	// HistoryKey holds the per-window tab history map in session storage.
	HistoryKey = "quilix.tabHistory"
	// TearOffParam marks a window spawned by a tear-off.
	TearOffParam = "tearOffId"
)

// BootResult reports the identity a window booted with.
type BootResult struct {
	WindowID schema.WindowID
	// Corrected is true when an inherited identity was replaced.
	Corrected bool
	// Inherited is the identity found in storage before correction, if any.
	Inherited schema.WindowID
	// TearOff is the transfer token carried by the boot URL, if any.
	TearOff schema.TransferToken
}

// New returns a fresh window identity.
func New() schema.WindowID {
	return schema.WindowID(uuid.NewString())
}

// Ensure returns the identity stored in session storage, generating and
// storing one on first access.
func Ensure(ctx context.Context, storage webstorage.Storage) (schema.WindowID, error) {
	value, ok, err := storage.Get(ctx, StorageKey)
	if err != nil {
		return "", fmt.Errorf("read window id: %w", err)
	}
	if ok && strings.TrimSpace(value) != "" {
		return schema.WindowID(value), nil
	}
	id := New()
	if err := storage.Set(ctx, StorageKey, string(id)); err != nil {
		return "", fmt.Errorf("store window id: %w", err)
	}
	pslog.Ctx(ctx).Debug("window id assigned", "window", id)
	return id, nil
}

// Boot resolves the window identity at the start of a window's boot sequence.
// It must run before anything else reads the identity or the history map.
// When bootURL carries a tear-off token, the session storage was copied from
// the opener: the inherited identity is overwritten with a fresh one and the
// inherited history map is cleared.
func Boot(ctx context.Context, storage webstorage.Storage, bootURL string) (BootResult, error) {
	token := TearOffToken(bootURL)
	if token == "" {
		id, err := Ensure(ctx, storage)
		if err != nil {
			return BootResult{}, err
		}
		return BootResult{WindowID: id}, nil
	}
	log := pslog.Ctx(ctx)
	inherited, _, err := storage.Get(ctx, StorageKey)
	if err != nil {
		return BootResult{}, fmt.Errorf("read window id: %w", err)
	}
	id := New()
	if err := storage.Set(ctx, StorageKey, string(id)); err != nil {
		return BootResult{}, fmt.Errorf("store window id: %w", err)
	}
	if err := storage.Remove(ctx, HistoryKey); err != nil {
		return BootResult{}, fmt.Errorf("clear inherited history: %w", err)
	}
	log.Info("window id corrected for tear-off", "window", id, "inherited", inherited, "token", token)
	return BootResult{
		WindowID:  id,
		Corrected: true,
		Inherited: schema.WindowID(inherited),
		TearOff:   token,
	}, nil
}

// TearOffToken extracts the tear-off token from a URL or path with query.
func TearOffToken(raw string) schema.TransferToken {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return schema.TransferToken(strings.TrimSpace(u.Query().Get(TearOffParam)))
}

// StripTearOffToken removes the tear-off parameter, leaving the rest of the URL intact.
func StripTearOffToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has(TearOffParam) {
		return raw
	}
	q.Del(TearOffParam)
	u.RawQuery = q.Encode()
	return u.String()
}

// WithTearOffToken appends the tear-off parameter to route.
func WithTearOffToken(route string, token schema.TransferToken) string {
	u, err := url.Parse(route)
	if err != nil {
		return route + "?" + TearOffParam + "=" + url.QueryEscape(string(token))
	}
	q := u.Query()
	q.Set(TearOffParam, string(token))
	u.RawQuery = q.Encode()
	return u.String()
}
