package syncbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/schema"
)

// JustLoggedInKey is the session flag set after a local login.
const JustLoggedInKey = "justLoggedIn"

// Authenticator performs the local half of an auth transition.
type Authenticator interface {
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// AuthSyncOptions configures an AuthSync.
type AuthSyncOptions struct {
	WindowID schema.WindowID
	Channel  Channel
	// Session is the storage of this window context.
	Session webstorage.Storage
	Auth    Authenticator
	// OnRemote observes every message received from another window.
	OnRemote func(schema.AuthMessage)
	Logger   pslog.Logger
}

// AuthSync keeps the auth state of one window in line with the other windows.
type AuthSync struct {
	windowID schema.WindowID
	channel  Channel
	session  webstorage.Storage
	auth     Authenticator
	onRemote func(schema.AuthMessage)
	log      pslog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  func()
	done    chan struct{}
	running bool
}

// NewAuthSync constructs an AuthSync.
func NewAuthSync(opts AuthSyncOptions) (*AuthSync, error) {
	if opts.WindowID == "" || opts.Channel == nil || opts.Auth == nil {
		return nil, schema.ErrInvalidRequest
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &AuthSync{
		windowID: opts.WindowID,
		channel:  opts.Channel,
		session:  opts.Session,
		auth:     opts.Auth,
		onRemote: opts.OnRemote,
		log:      logger.With("window", opts.WindowID),
		now:      time.Now,
	}, nil
}

// Start subscribes to the channel and handles remote transitions until Stop.
func (a *AuthSync) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	msgs, cancel, err := a.channel.Subscribe(ctx, a.windowID)
	if err != nil {
		return fmt.Errorf("auth sync subscribe: %w", err)
	}
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	go a.loop(context.WithoutCancel(ctx), msgs, a.done)
	a.log.Debug("auth sync started")
	return nil
}

// Stop unsubscribes and waits for the handler loop to exit.
func (a *AuthSync) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel, done := a.cancel, a.done
	a.running = false
	a.mu.Unlock()
	cancel()
	<-done
	a.log.Debug("auth sync stopped")
}

func (a *AuthSync) loop(ctx context.Context, msgs <-chan schema.AuthMessage, done chan struct{}) {
	defer close(done)
	for msg := range msgs {
		a.HandleRemote(ctx, msg)
	}
}

// HandleRemote applies a message received from another window. A remote
// logout signs this window out without broadcasting again.
func (a *AuthSync) HandleRemote(ctx context.Context, msg schema.AuthMessage) {
	if msg.Sender == a.windowID {
		return
	}
	log := a.log.With("sender", msg.Sender, "type", msg.Type)
	switch msg.Type {
	case schema.AuthLogout:
		if err := a.auth.SignOut(ctx); err != nil {
			log.Warn("auth sync forced logout failed", "err", err)
		} else {
			log.Info("auth sync forced logout")
		}
	case schema.AuthLogin:
		log.Info("auth sync remote login")
	default:
		log.Debug("auth sync message ignored")
		return
	}
	if a.onRemote != nil {
		a.onRemote(msg)
	}
}

// Login signs in locally, flags the session and then tells the other windows.
func (a *AuthSync) Login(ctx context.Context) error {
	if err := a.auth.SignIn(ctx); err != nil {
		return err
	}
	if a.session != nil {
		if err := a.session.Set(ctx, JustLoggedInKey, "true"); err != nil {
			a.log.Warn("auth sync login flag failed", "err", err)
		}
	}
	return a.broadcast(ctx, schema.AuthLogin)
}

// Logout signs out locally and then tells the other windows.
func (a *AuthSync) Logout(ctx context.Context) error {
	if err := a.auth.SignOut(ctx); err != nil {
		return err
	}
	return a.broadcast(ctx, schema.AuthLogout)
}

func (a *AuthSync) broadcast(ctx context.Context, kind schema.AuthEventType) error {
	msg := schema.AuthMessage{Type: kind, Sender: a.windowID, SentAt: schema.NowMillis(a.now())}
	if err := a.channel.Publish(ctx, msg); err != nil {
		if errors.Is(err, schema.ErrChannelClosed) {
			a.log.Debug("auth sync broadcast skipped", "type", kind)
			return nil
		}
		a.log.Warn("auth sync broadcast failed", "type", kind, "err", err)
		return err
	}
	a.log.Info("auth sync broadcast", "type", kind)
	return nil
}

// ConsumeJustLoggedIn reports and clears the post-login session flag.
func ConsumeJustLoggedIn(ctx context.Context, session webstorage.Storage) bool {
	value, ok, err := session.Get(ctx, JustLoggedInKey)
	if err != nil || !ok {
		return false
	}
	_ = session.Remove(ctx, JustLoggedInKey)
	return value == "true"
}
