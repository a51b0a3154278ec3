package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/quilix/internal/webstorage"
	"pkt.systems/quilix/internal/windowid"
	"pkt.systems/quilix/schema"
)

// TransferKeyPrefix prefixes tear-off payload keys in durable storage.
const TransferKeyPrefix = "quilix.tearOff."

// TransferKey returns the durable storage key of a tear-off token.
func TransferKey(token schema.TransferToken) string {
	return TransferKeyPrefix + string(token)
}

// TearOff moves a tab's state into a freshly spawned window through a
// one-shot payload in durable storage.
type TearOff struct {
	durable  webstorage.Storage
	opener   WindowOpener
	features WindowFeatures
	log      pslog.Logger
}

// NewTearOff constructs a TearOff writing payloads to durable.
func NewTearOff(durable webstorage.Storage, opener WindowOpener, cfg schema.WindowConfig, logger pslog.Logger) *TearOff {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &TearOff{
		durable: durable,
		opener:  opener,
		features: WindowFeatures{
			Popup:  cfg.TearOffPopup,
			Width:  cfg.TearOffWidth,
			Height: cfg.TearOffHeight,
		},
		log: logger,
	}
}

// Initiate writes the payload for state and historyPayload and opens a
// window at the same route carrying the token. The payload is removed again
// when the window cannot be opened.
func (t *TearOff) Initiate(ctx context.Context, state schema.TabState, historyPayload string) (schema.TransferToken, error) {
	if t.opener == nil {
		return "", fmt.Errorf("tear-off: %w", schema.ErrUnsupported)
	}
	if state.Route == "" {
		return "", schema.ErrInvalidRequest
	}
	token := newTransferToken()
	data, err := json.Marshal(schema.TransferPayload{TabState: state, HistoryPayload: historyPayload})
	if err != nil {
		return "", err
	}
	if err := t.durable.Set(ctx, TransferKey(token), string(data)); err != nil {
		return "", fmt.Errorf("store tear-off payload: %w", err)
	}
	target := windowid.WithTearOffToken(state.Route, token)
	if err := t.opener.Open(ctx, target, t.features); err != nil {
		if rmErr := t.durable.Remove(ctx, TransferKey(token)); rmErr != nil {
			t.log.Warn("tear-off payload cleanup failed", "token", token, "err", rmErr)
		}
		t.log.Warn("tear-off open failed", "token", token, "err", err)
		return "", fmt.Errorf("open tear-off window: %w", err)
	}
	t.log.Info("tear-off initiated", "token", token, "route", state.Route, "history_bytes", len(historyPayload))
	return token, nil
}

// InitiateSpace tears a space out into its own window with a fresh history.
func (t *TearOff) InitiateSpace(ctx context.Context, space schema.Space) (schema.TransferToken, error) {
	if space.ID == "" {
		return "", schema.ErrInvalidRequest
	}
	state := schema.TabState{Route: SpaceRoute(space.ID), Label: space.Name, Icon: "space"}
	return t.Initiate(ctx, state, "")
}

// Consume reads and deletes the payload of token. Missing or malformed
// payloads report false.
func (t *TearOff) Consume(ctx context.Context, token schema.TransferToken) (schema.TransferPayload, bool) {
	payload, err := t.Load(ctx, token)
	if rmErr := t.durable.Remove(ctx, TransferKey(token)); rmErr != nil {
		t.log.Warn("tear-off payload delete failed", "token", token, "err", rmErr)
	}
	if err != nil {
		t.log.Warn("tear-off payload dropped", "token", token, "err", err)
		return schema.TransferPayload{}, false
	}
	t.log.Debug("tear-off payload consumed", "token", token)
	return payload, true
}

// Load reads the payload of token without deleting it.
func (t *TearOff) Load(ctx context.Context, token schema.TransferToken) (schema.TransferPayload, error) {
	raw, ok, err := t.durable.Get(ctx, TransferKey(token))
	if err != nil {
		return schema.TransferPayload{}, err
	}
	if !ok {
		return schema.TransferPayload{}, errors.New("tear-off payload missing")
	}
	var payload schema.TransferPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return schema.TransferPayload{}, fmt.Errorf("%w: %v", schema.ErrMalformedPayload, err)
	}
	if payload.TabState.Route == "" {
		return schema.TransferPayload{}, fmt.Errorf("%w: empty route", schema.ErrMalformedPayload)
	}
	return payload, nil
}

// SpaceRoute is the route showing a space.
func SpaceRoute(id schema.SpaceID) string {
	return "/spaces/" + string(id)
}
