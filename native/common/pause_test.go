package common

import "testing"

func TestGuard(t *testing.T) {
	if err := Guard(nil, "credit"); err != nil {
		t.Fatalf("nil view must never pause: %v", err)
	}

	s := NewSwitchboard()
	if err := Guard(s, "credit"); err != nil {
		t.Fatalf("fresh switchboard must not pause: %v", err)
	}

	s.Pause("credit")
	if err := Guard(s, "credit"); err != ErrModulePaused {
		t.Fatalf("got %v, want ErrModulePaused", err)
	}
	if err := Guard(s, "other"); err != nil {
		t.Fatalf("other modules stay unaffected: %v", err)
	}

	s.Resume("credit")
	if err := Guard(s, "credit"); err != nil {
		t.Fatalf("resumed module must pass: %v", err)
	}
}

func TestSwitchboardNilSafety(t *testing.T) {
	var s *Switchboard
	if s.IsPaused("credit") {
		t.Fatalf("nil switchboard reports paused")
	}
	s.Pause("credit")
	s.Resume("credit")
}
