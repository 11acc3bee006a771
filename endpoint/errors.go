package endpoint

import (
	"errors"
)

// ErrUnsupported is returned on platforms without unix socket support.
var ErrUnsupported = errors.New("endpoint: unsupported platform")

// OpError describes a failed socket operation, on a specific address.
type OpError struct {
	// Op is the operation, e.g. "bind", "listen", "connect".
	Op   string
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	if e.Addr == `` {
		return `endpoint: ` + e.Op + `: ` + e.Err.Error()
	}
	return `endpoint: ` + e.Op + ` ` + e.Addr + `: ` + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Addr: addr, Err: err}
}
