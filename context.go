package quilix

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/quilix/core"
	"pkt.systems/quilix/internal/webstorage"
)

// URLKey holds the URL a window context is showing in its session storage.
const URLKey = "quilix.url"

// contextRouter keeps the current URL of a window context in its session
// storage, so reopening the context resumes where it was.
type contextRouter struct {
	session webstorage.Storage
	log     pslog.Logger

	mu  sync.Mutex
	url string
}

func newContextRouter(session webstorage.Storage, logger pslog.Logger) *contextRouter {
	r := &contextRouter{session: session, log: logger}
	if value, ok, err := session.Get(context.Background(), URLKey); err == nil && ok {
		r.url = value
	}
	return r
}

func (r *contextRouter) Navigate(ctx context.Context, url string) error {
	if err := r.session.Set(ctx, URLKey, url); err != nil {
		return err
	}
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
	r.log.Trace("router navigated", "url", url)
	return nil
}

func (r *contextRouter) ReplaceURL(url string) {
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
	if err := r.session.Set(context.Background(), URLKey, url); err != nil {
		r.log.Warn("router replace url failed", "err", err)
	}
}

func (r *contextRouter) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// OpenedContext describes a window context spawned by a tear-off.
type OpenedContext struct {
	ContextID string
	URL       string
	Features  core.WindowFeatures
	OpenedAt  time.Time
}

// contextOpener spawns a window context the way a browser does: the new
// context starts with a copy of the opener's session storage and the target
// URL. The context boots on its next Open.
type contextOpener struct {
	session *webstorage.Session
	log     pslog.Logger

	mu     sync.Mutex
	opened []OpenedContext
}

func newContextOpener(session *webstorage.Session, logger pslog.Logger) *contextOpener {
	return &contextOpener{session: session, log: logger}
}

func (o *contextOpener) Open(ctx context.Context, url string, features core.WindowFeatures) error {
	id := "ctx-" + uuid.NewString()[:8]
	dup, err := o.session.Duplicate(id)
	if err != nil {
		return err
	}
	if err := dup.Set(ctx, URLKey, url); err != nil {
		_ = dup.Close()
		return err
	}
	o.mu.Lock()
	o.opened = append(o.opened, OpenedContext{ContextID: id, URL: url, Features: features, OpenedAt: time.Now()})
	o.mu.Unlock()
	o.log.Info("window context opened", "to", id, "url", url, "popup", features.Popup)
	return nil
}

func (o *contextOpener) Opened() []OpenedContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OpenedContext(nil), o.opened...)
}
