package gpio

import (
	"errors"
	"testing"
)

var _ Relay = (*FakeRelay)(nil)
var _ Relay = (*RealRelay)(nil)

func TestFakeRelaySet(t *testing.T) {
	f := NewFakeRelay()

	for _, on := range []bool{true, true, false} {
		if err := f.Set(on); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	calls := f.Calls()
	want := []bool{true, true, false}
	if len(calls) != len(want) {
		t.Fatalf("calls: got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %v, want %v", i, calls[i], want[i])
		}
	}
	if f.IsOn() {
		t.Error("relay should be off after last Set(false)")
	}
}

func TestFakeRelayError(t *testing.T) {
	f := NewFakeRelay()
	f.SetError = errors.New("simulated error")

	err := f.Set(true)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if f.IsOn() {
		t.Error("failed Set must leave the output unchanged")
	}
	if len(f.Calls()) != 0 {
		t.Errorf("failed Set should not be recorded, got %v", f.Calls())
	}
}

func TestFakeRelayClose(t *testing.T) {
	f := NewFakeRelay()
	f.Set(true)

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.IsOn() {
		t.Error("Close should de-energise the relay")
	}
}

func TestFakeRelayReset(t *testing.T) {
	f := NewFakeRelay()
	f.Set(true)
	f.Close()

	f.Reset()

	if f.Closed || f.IsOn() || len(f.Calls()) != 0 {
		t.Errorf("after reset: got closed=%v on=%v calls=%v", f.Closed, f.IsOn(), f.Calls())
	}
}
