package events

import (
	"testing"

	"beanstalk/core/types"
)

func TestBufferFlushesInOrderAndDiscards(t *testing.T) {
	var buf Buffer
	buf.Emit(Wrap(&types.Event{Type: "field.sow"}))
	buf.Emit(Wrap(&types.Event{Type: "field.harvest"}))

	rec := &Recorder{}
	buf.Flush(rec)
	if len(rec.Events) != 2 || rec.Events[0].Type != "field.sow" || rec.Events[1].Type != "field.harvest" {
		t.Fatalf("unexpected flushed events: %+v", rec.Events)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer should be empty after flush")
	}

	buf.Emit(Wrap(&types.Event{Type: "sun.soil"}))
	buf.Discard()
	buf.Flush(rec)
	if len(rec.Events) != 2 {
		t.Fatalf("discarded events must not be flushed")
	}
	if len(rec.OfType("field.sow")) != 1 {
		t.Fatalf("expected one sow event")
	}
}
