package nullsink

import (
	"testing"

	"github.com/user/vidloop/pkg/ports"
)

func TestSink_Deliver(t *testing.T) {
	sink := New()
	for i := int64(0); i < 3; i++ {
		if err := sink.Deliver(&ports.Frame{PTS: i * 40}); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}
	if sink.Frames() != 3 {
		t.Errorf("expected 3 frames, got %d", sink.Frames())
	}
	if sink.LastPTS() != 80 {
		t.Errorf("expected last pts 80, got %d", sink.LastPTS())
	}
}
