package clock

import (
	"testing"
	"time"
)

func TestManual_StartsAtZero(t *testing.T) {
	m := NewManual()
	if got := m.Now(); got != 0 {
		t.Errorf("expected fresh Manual clock to read 0, got %d", got)
	}
}

func TestManual_AdvanceAccumulates(t *testing.T) {
	m := NewManual()
	m.Advance(1 * time.Second)
	m.Advance(500 * time.Millisecond)

	want := (1500 * time.Millisecond).Nanoseconds()
	if got := m.Now(); got != want {
		t.Errorf("expected %d ns, got %d", want, got)
	}
}

func TestManual_AdvanceNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Advance with a negative duration to panic")
		}
	}()
	NewManual().Advance(-time.Second)
}

func TestManual_SetNeverGoesBackwards(t *testing.T) {
	m := NewManual()
	m.Advance(10 * time.Second)
	m.Set(1) // earlier than current value
	if got := m.Now(); got != (10 * time.Second).Nanoseconds() {
		t.Errorf("Set should not move the clock backwards, got %d", got)
	}

	m.Set((20 * time.Second).Nanoseconds())
	if got := m.Now(); got != (20 * time.Second).Nanoseconds() {
		t.Errorf("Set should move the clock forward, got %d", got)
	}
}

func TestManual_SourceReflectsLiveValue(t *testing.T) {
	m := NewManual()
	src := m.Source()
	if src() != 0 {
		t.Fatal("expected zero reading before any advance")
	}
	m.Advance(time.Second)
	if src() != time.Second.Nanoseconds() {
		t.Error("Source should read the clock's current value, not a snapshot")
	}
}

func TestSystem_IsMonotonicallyNonDecreasing(t *testing.T) {
	src := System()
	prev := src()
	for i := 0; i < 1000; i++ {
		cur := src()
		if cur < prev {
			t.Fatalf("System clock went backwards: %d then %d", prev, cur)
		}
		prev = cur
	}
}
