package endpoint

import (
	"fmt"
	"strings"
)

// Transport selects the unix socket type used by an endpoint.
type Transport int

const (
	// Datagram is a connectionless unix socket (SOCK_DGRAM), the traditional
	// transport for /dev/log.
	Datagram Transport = iota
	// Stream is a connection oriented unix socket (SOCK_STREAM).
	Stream
)

// ParseTransport accepts "dgram", "datagram", or "stream", case
// insensitively.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `dgram`, `datagram`:
		return Datagram, nil
	case `stream`:
		return Stream, nil
	default:
		return 0, fmt.Errorf("endpoint: invalid transport %q: must be one of stream, dgram", s)
	}
}

func (x Transport) String() string {
	switch x {
	case Datagram:
		return `dgram`
	case Stream:
		return `stream`
	default:
		return fmt.Sprintf("Transport(%d)", int(x))
	}
}

// Set implements pflag.Value.
func (x *Transport) Set(s string) error {
	v, err := ParseTransport(s)
	if err != nil {
		return err
	}
	*x = v
	return nil
}

// Type implements pflag.Value.
func (x *Transport) Type() string { return `transport` }

// Unpack implements the go-ucfg StringUnpacker interface.
func (x *Transport) Unpack(s string) error { return x.Set(s) }

// Valid reports whether x is a known transport.
func (x Transport) Valid() bool {
	return x == Datagram || x == Stream
}
