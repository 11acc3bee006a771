// Package poller provides a minimal readiness poller, with a callback per
// registered file descriptor, and a goroutine-safe wakeup.
package poller

import (
	"errors"
)

// Events represents the type of I/O events to monitor.
type Events uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead Events = 1 << iota
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// DefaultMaxEvents is used by New if maxEvents is not positive.
const DefaultMaxEvents = 256

var (
	ErrFDAlreadyRegistered = errors.New("poller: fd already registered")
	ErrFDNotRegistered     = errors.New("poller: fd not registered")
	ErrPollerClosed        = errors.New("poller: poller closed")
	ErrUnsupported         = errors.New("poller: unsupported platform")
)

// Callback is called, from the goroutine calling Poll, with the events
// that are ready for the file descriptor it was registered with.
type Callback func(Events)
