//go:build !linux

package endpoint

import (
	"time"
)

const (
	Mode           = 0666
	DefaultBacklog = 1024
)

type DialOptions struct {
	BindDir     string
	SendTimeout time.Duration
}

// Conn is only implemented on linux.
type Conn struct{}

func Listen(string, Transport, int) (int, error) { return -1, ErrUnsupported }

func Accept(int) (int, error) { return -1, ErrUnsupported }

func Dial(string, Transport, DialOptions) (*Conn, error) { return nil, ErrUnsupported }

func (*Conn) Write([]byte) (int, error) { return 0, ErrUnsupported }

func (*Conn) Read([]byte) (int, error) { return 0, ErrUnsupported }

func (*Conn) Close() error { return nil }

func (*Conn) Fd() int { return -1 }

func (*Conn) Addr() string { return `` }

func (*Conn) Transport() Transport { return Datagram }
