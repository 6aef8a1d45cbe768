// Package gpio drives the local boiler relay output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Relay drives a single on/off output.
type Relay interface {
	// Set drives the output. on = relay energised.
	Set(on bool) error

	// Close de-energises the output and releases GPIO resources.
	Close() error
}
