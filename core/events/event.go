package events

import "energymarket/core/types"

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed wraps a raw event payload so it satisfies Event.
type Typed struct {
	Payload *types.Event
}

// EventType implements Event.
func (t Typed) EventType() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.Type
}

// Event implements Event.
func (t Typed) Event() *types.Event { return t.Payload }
