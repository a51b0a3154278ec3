package core

import "pkt.systems/quilix/schema"

// EventSink receives tab events from a tab session.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
}

type nopSink struct{}

func (nopSink) OnTabEvent(schema.TabEvent) {}
