package sink

import (
	"context"
	"io"

	"github.com/joeycumines/go-syslogsafer/endpoint"
)

// Dialer opens a connection to the destination.
type Dialer interface {
	Dial(ctx context.Context) (io.WriteCloser, error)
}

// DialerFunc implements Dialer.
type DialerFunc func(ctx context.Context) (io.WriteCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.WriteCloser, error) { return f(ctx) }

// SocketDialer dials a unix socket, see endpoint.Dial.
type SocketDialer struct {
	Address   string
	Transport endpoint.Transport
	Options   endpoint.DialOptions
}

func (x *SocketDialer) Dial(context.Context) (io.WriteCloser, error) {
	return endpoint.Dial(x.Address, x.Transport, x.Options)
}
