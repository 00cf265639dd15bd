package events

import "beanstalk/core/types"

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

type envelope struct {
	evt *types.Event
}

func (e envelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e envelope) Event() *types.Event { return e.evt }

// Wrap converts a raw event payload into the emitter-friendly envelope.
func Wrap(evt *types.Event) Event { return envelope{evt: evt} }

// Payload extracts the raw payload from an event produced by Wrap.
func Payload(evt Event) *types.Event {
	if p, ok := evt.(interface{ Event() *types.Event }); ok {
		return p.Event()
	}
	return nil
}

// Buffer collects events until the enclosing call commits. Discard drops them
// when the call reverts.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Flush forwards the buffered events to dst in emission order and clears the
// buffer.
func (b *Buffer) Flush(dst Emitter) {
	pending := b.events
	b.events = nil
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Discard drops all buffered events.
func (b *Buffer) Discard() { b.events = nil }

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Recorder keeps every emitted event. Useful in tests and in the daemon's
// recent-events ring.
type Recorder struct {
	Events []*types.Event
}

func (r *Recorder) Emit(evt Event) {
	if payload := Payload(evt); payload != nil {
		r.Events = append(r.Events, payload)
	}
}

// OfType returns the recorded payloads with the given type.
func (r *Recorder) OfType(kind string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.Events {
		if evt.Type == kind {
			out = append(out, evt)
		}
	}
	return out
}
