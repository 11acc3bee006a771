//go:build linux

package endpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Mode is applied to listening socket paths, so any local process may log.
const Mode = 0666

// DefaultBacklog is used by Listen if backlog is not positive.
const DefaultBacklog = 1024

// DialOptions configures Dial.
type DialOptions struct {
	// BindDir is the directory of the temporary local address, named after
	// the process id, bound before connecting, then immediately unlinked.
	// If empty, the socket is not bound.
	BindDir string

	// SendTimeout sets SO_SNDTIMEO, if positive. Sends that time out fail
	// with EAGAIN.
	SendTimeout time.Duration
}

// Conn is a connected unix socket.
type Conn struct {
	addr      string
	fd        int
	transport Transport
	closeOnce sync.Once
	closeErr  error
}

var (
	// compile time assertions

	_ io.ReadWriteCloser = (*Conn)(nil)
)

func (x Transport) sotype() (int, error) {
	switch x {
	case Datagram:
		return unix.SOCK_DGRAM, nil
	case Stream:
		return unix.SOCK_STREAM, nil
	default:
		return 0, fmt.Errorf("endpoint: invalid transport: %s", x)
	}
}

// Listen creates a non-blocking, close-on-exec unix socket, bound to path
// (which is first removed, if it exists), with permissions set to Mode. Stream
// sockets are also put into the listening state. The caller owns the
// returned file descriptor.
func Listen(path string, transport Transport, backlog int) (fd int, err error) {
	sotype, err := transport.sotype()
	if err != nil {
		return -1, err
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	fd, err = unix.Socket(unix.AF_UNIX, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, opError(`socket`, path, err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return -1, opError(`unlink`, path, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		return -1, opError(`bind`, path, err)
	}

	if transport == Stream {
		if err := unix.Listen(fd, backlog); err != nil {
			return -1, opError(`listen`, path, err)
		}
	}

	if err := unix.Chmod(path, Mode); err != nil {
		return -1, opError(`chmod`, path, err)
	}

	return fd, nil
}

// Accept accepts a pending connection on a listening socket, returning a
// non-blocking, close-on-exec file descriptor. Errors are returned as is,
// e.g. EAGAIN when there are no more pending connections.
func Accept(fd int) (int, error) {
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		return nfd, err
	}
}

// Dial connects to the unix socket at path. See also DialOptions.
func Dial(path string, transport Transport, opts DialOptions) (_ *Conn, err error) {
	sotype, err := transport.sotype()
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, sotype|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, opError(`socket`, path, err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if opts.BindDir != `` {
		local := filepath.Join(opts.BindDir, fmt.Sprintf("%05d", os.Getpid()))
		_ = unix.Unlink(local)
		err := unix.Bind(fd, &unix.SockaddrUnix{Name: local})
		// the address stays bound until the socket is closed
		_ = unix.Unlink(local)
		if err != nil {
			return nil, opError(`bind`, local, err)
		}
	}

	if opts.SendTimeout > 0 {
		tv := unix.NsecToTimeval(opts.SendTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			return nil, opError(`setsockopt`, path, err)
		}
	}

	for {
		err = unix.Connect(fd, &unix.SockaddrUnix{Name: path})
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, opError(`connect`, path, err)
	}

	return &Conn{addr: path, fd: fd, transport: transport}, nil
}

// Write sends p, suppressing SIGPIPE. For datagram connections, p is sent
// as a single datagram. Stream writes may be partial.
func (x *Conn) Write(p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(x.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, opError(`send`, x.addr, err)
		}
		return n, nil
	}
}

// Read reads from the connection, returning io.EOF if a stream peer closed
// its end.
func (x *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(x.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, opError(`read`, x.addr, err)
		}
		if n == 0 && len(p) != 0 && x.transport == Stream {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Close closes the underlying socket. Subsequent calls return the result of
// the first.
func (x *Conn) Close() error {
	x.closeOnce.Do(func() {
		x.closeErr = unix.Close(x.fd)
	})
	return x.closeErr
}

// Fd returns the underlying file descriptor.
func (x *Conn) Fd() int { return x.fd }

// Addr returns the address that was dialed.
func (x *Conn) Addr() string { return x.addr }

// Transport returns the socket type of the connection.
func (x *Conn) Transport() Transport { return x.transport }
