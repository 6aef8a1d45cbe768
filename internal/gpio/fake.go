package gpio

import "sync"

// FakeRelay is a test double that records every Set call.
type FakeRelay struct {
	mu sync.Mutex

	// States contains every value passed to Set, in order.
	States []bool

	// On is the current output.
	On bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set() and the output left unchanged.
	SetError error
}

// NewFakeRelay creates a de-energised FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the requested output.
func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.States = append(f.States, on)
	f.On = on
	return nil
}

// Close de-energises the output and marks the relay as closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.On = false
	f.Closed = true
	return nil
}

// Calls returns a copy of the recorded Set values.
func (f *FakeRelay) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.States...)
}

// IsOn reports the current output.
func (f *FakeRelay) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// Reset clears recorded calls and state.
func (f *FakeRelay) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = nil
	f.On = false
	f.Closed = false
	f.SetError = nil
}
