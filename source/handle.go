package source

import (
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-syslogsafer/endpoint"
	"github.com/joeycumines/go-syslogsafer/internal/poller"
)

type handleKind int

const (
	kindListener handleKind = iota
	kindStream
	kindDatagram
)

func (x handleKind) String() string {
	switch x {
	case kindListener:
		return `listener`
	case kindStream:
		return `stream`
	case kindDatagram:
		return `datagram`
	default:
		return `unknown`
	}
}

// handle is a file descriptor registered with the multiplexer's poller,
// which owns it exclusively.
type handle struct {
	buf  []byte
	fd   int
	kind handleKind
}

// register adds h to the poller and the handle map. On failure, h is
// disposed.
func (m *Multiplexer) register(h *handle) error {
	m.handles[h.fd] = h
	if err := m.poller.Register(h.fd, poller.EventRead, func(events poller.Events) {
		m.process(h, events)
	}); err != nil {
		m.dispose(h)
		return err
	}
	return nil
}

// dispose is the only place handles are released.
func (m *Multiplexer) dispose(h *handle) {
	if m.handles[h.fd] != h {
		return
	}
	delete(m.handles, h.fd)
	_ = m.poller.Unregister(h.fd)
	if err := unix.Close(h.fd); err != nil {
		m.logger.Debug().
			Int(`fd`, h.fd).
			Err(err).
			Log(`source: close failed`)
	}
	m.logger.Debug().
		Int(`fd`, h.fd).
		Stringer(`kind`, h.kind).
		Log(`source: disposed handle`)
}

func (m *Multiplexer) process(h *handle, _ poller.Events) {
	switch h.kind {
	case kindListener:
		m.accept(h)
	case kindStream:
		m.readStream(h)
	case kindDatagram:
		m.readDatagrams(h)
	}
}

// accept registers every pending connection.
func (m *Multiplexer) accept(h *handle) {
	for {
		fd, err := endpoint.Accept(h.fd)
		switch err {
		case nil:
		case unix.EAGAIN:
			return
		case unix.ECONNABORTED:
			continue
		default:
			// e.g. EMFILE, retried on the next readiness event
			if _, ok := m.limiter.Allow(`accept`); ok {
				m.logger.Warning().
					Str(`address`, m.cfg.Address).
					Err(err).
					Log(`source: accept failed`)
			}
			return
		}

		conn := &handle{
			buf:  make([]byte, m.cfg.ChunkSize),
			fd:   fd,
			kind: kindStream,
		}
		if err := m.register(conn); err != nil {
			m.logger.Warning().
				Int(`fd`, fd).
				Err(err).
				Log(`source: register connection failed`)
			continue
		}

		m.logger.Debug().
			Int(`fd`, fd).
			Log(`source: accepted connection`)
	}
}

// readStream forwards everything available, disposing the connection on
// EOF, or any error other than EAGAIN.
func (m *Multiplexer) readStream(h *handle) {
	for {
		n, err := unix.Read(h.fd, h.buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return
		case err != nil:
			m.logger.Debug().
				Int(`fd`, h.fd).
				Err(err).
				Log(`source: read failed`)
			m.dispose(h)
			return
		case n == 0:
			m.dispose(h)
			return
		}
		m.forward(h.buf[:n])
	}
}

// readDatagrams forwards each pending datagram as a separate write.
func (m *Multiplexer) readDatagrams(h *handle) {
	for {
		n, err := unix.Read(h.fd, h.buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return
		case err != nil:
			if _, ok := m.limiter.Allow(`read`); ok {
				m.logger.Warning().
					Str(`address`, m.cfg.Address).
					Err(err).
					Log(`source: read failed`)
			}
			return
		case n == 0:
			continue
		}
		m.forward(h.buf[:n])
	}
}

func (m *Multiplexer) forward(b []byte) {
	if _, err := m.out.Write(b); err != nil {
		if _, ok := m.limiter.Allow(`write`); !ok {
			return
		}
		m.logger.Warning().
			Int(`bytes`, len(b)).
			Err(err).
			Log(`source: write failed`)
	}
}
