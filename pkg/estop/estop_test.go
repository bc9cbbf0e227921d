package estop

import "testing"

func TestLifecycle(t *testing.T) {
	l := New()
	if l.Armed() || l.Triggered() {
		t.Fatal("new latch should be disarmed")
	}

	// Triggering before arming is ignored.
	l.Trigger()
	if l.Triggered() {
		t.Fatal("trigger before arm should be ignored")
	}

	l.Arm()
	if !l.Armed() {
		t.Fatal("latch should be armed")
	}
	l.Trigger()
	if !l.Triggered() {
		t.Fatal("latch should be triggered")
	}

	// Once triggered, it stays triggered until Reset.
	l.Arm()
	if !l.Triggered() {
		t.Fatal("arm must not clear a triggered latch")
	}

	l.Reset()
	if l.Armed() || l.Triggered() {
		t.Fatal("reset should disarm")
	}
}
