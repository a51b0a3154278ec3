package syncbus

import (
	"context"
	"strconv"
	"time"

	"pkt.systems/quilix/internal/webstorage"
)

// SignedInKey records the local sign-in time in durable storage.
const SignedInKey = "quilix.auth.signedInAt"

// StorageAuthenticator keeps the signed-in marker in a storage. It stands in
// for the hosted identity provider when running outside the app shell.
type StorageAuthenticator struct {
	Storage webstorage.Storage
	Now     func() time.Time
}

func (s StorageAuthenticator) SignIn(ctx context.Context) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Storage.Set(ctx, SignedInKey, strconv.FormatInt(now().UnixMilli(), 10))
}

func (s StorageAuthenticator) SignOut(ctx context.Context) error {
	return s.Storage.Remove(ctx, SignedInKey)
}

// SignedIn reports whether a sign-in marker is present.
func (s StorageAuthenticator) SignedIn(ctx context.Context) (bool, error) {
	_, ok, err := s.Storage.Get(ctx, SignedInKey)
	return ok, err
}
