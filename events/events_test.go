package events

import (
	"fmt"
	"testing"
)

func TestRecorderKeepsMostRecent(t *testing.T) {
	recorder := NewRecorder(3)
	for i := 0; i < 5; i++ {
		recorder.Emit(Event{Type: fmt.Sprintf("evt-%d", i)})
	}
	recorded := recorder.Events()
	if len(recorded) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(recorded))
	}
	if recorded[0].Type != "evt-2" || recorded[2].Type != "evt-4" {
		t.Fatalf("expected oldest events dropped, got %v", recorded)
	}
}

func TestRecorderReturnsCopies(t *testing.T) {
	recorder := NewRecorder(0)
	recorder.Emit(Event{Type: "evt", Attributes: map[string]string{"k": "v"}})
	snapshot := recorder.Events()
	snapshot[0].Type = "mutated"
	if recorder.Events()[0].Type != "evt" {
		t.Fatalf("snapshot mutation must not reach the recorder")
	}
}
