package rpc

import (
	"sync"

	"beanstalk/core/events"
)

// EventLog keeps the most recent committed protocol events for the API. It
// is an events.Emitter and is safe for concurrent use.
type EventLog struct {
	mu       sync.RWMutex
	capacity int
	next     uint64
	ring     []EventResponse
	subs     map[chan EventResponse]struct{}
}

// subscriberBuffer is how far a subscriber may fall behind before it is
// dropped.
const subscriberBuffer = 64

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventLog{
		capacity: capacity,
		ring:     make([]EventResponse, 0, capacity),
		subs:     make(map[chan EventResponse]struct{}),
	}
}

func (l *EventLog) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	attrs := make(map[string]string, len(payload.Attributes))
	for k, v := range payload.Attributes {
		attrs[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := EventResponse{Sequence: l.next, Type: payload.Type, Attributes: attrs}
	l.next++
	if len(l.ring) < l.capacity {
		l.ring = append(l.ring, entry)
	} else {
		copy(l.ring, l.ring[1:])
		l.ring[len(l.ring)-1] = entry
	}
	for ch := range l.subs {
		select {
		case ch <- entry:
		default:
			// Too slow: close so the client resumes from its cursor.
			delete(l.subs, ch)
			close(ch)
		}
	}
}

// Subscribe returns the retained events from sequence from onwards and a
// channel of later ones. The channel is closed when cancel is called or the
// subscriber falls behind.
func (l *EventLog) Subscribe(from uint64) ([]EventResponse, <-chan EventResponse, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	backlog := make([]EventResponse, 0)
	for _, evt := range l.ring {
		if evt.Sequence >= from {
			backlog = append(backlog, evt)
		}
	}
	ch := make(chan EventResponse, subscriberBuffer)
	l.subs[ch] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
		})
	}
	return backlog, ch, cancel
}

// Since returns up to limit events with a sequence of at least from, oldest
// first.
func (l *EventLog) Since(from uint64, limit int) []EventResponse {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]EventResponse, 0)
	for _, evt := range l.ring {
		if evt.Sequence < from {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, evt)
	}
	return out
}

// Fanout forwards every event to each non-nil emitter in order.
type Fanout []events.Emitter

func (f Fanout) Emit(evt events.Event) {
	for _, dst := range f {
		if dst != nil {
			dst.Emit(evt)
		}
	}
}
