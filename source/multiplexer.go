// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package source implements the producer side of the relay: a readiness
// driven loop, which accepts and reads from a unix socket, forwarding
// everything it receives to an io.Writer.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-syslogsafer/endpoint"
	"github.com/joeycumines/go-syslogsafer/internal/poller"
)

const (
	DefaultChunkSize   = 16 * 1024
	DefaultPollTimeout = 500 * time.Millisecond
	DefaultMaxEvents   = 256
)

var (
	ErrAlreadyStarted = errors.New("source: multiplexer already started")
	ErrNilWriter      = errors.New("source: nil writer")
)

type (
	// Config models the source endpoint, and the loop's tunables.
	Config struct {
		// Address is the path of the unix socket to bind, e.g. /dev/log.
		Address   string
		Transport endpoint.Transport
		// ChunkSize is the size of each read, and therefore the largest
		// write to the output. Larger datagrams are truncated.
		ChunkSize int
		// PollTimeout bounds each wait for readiness.
		PollTimeout time.Duration
		Backlog     int
		MaxEvents   int
	}

	// Multiplexer owns the source socket, every connection accepted from it,
	// and the poller used to wait on them. It is driven by a single
	// goroutine, see Run.
	Multiplexer struct {
		out      io.Writer
		logger   *logiface.Logger[logiface.Event]
		limiter  *catrate.Limiter
		handles  map[int]*handle
		poller   *poller.Poller
		ready    chan struct{}
		cfg      Config
		pollerMu sync.Mutex
		started  atomic.Bool
		stopped  atomic.Bool
	}
)

// New validates the config, applying defaults. Nothing is opened until Run.
func New(cfg Config, out io.Writer, opts ...Option) (*Multiplexer, error) {
	if out == nil {
		return nil, ErrNilWriter
	}
	if cfg.Address == `` {
		return nil, errors.New("source: address required")
	}
	if !cfg.Transport.Valid() {
		return nil, fmt.Errorf("source: invalid transport: %s", cfg.Transport)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = endpoint.DefaultBacklog
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}

	o, err := resolveMultiplexerOptions(opts)
	if err != nil {
		return nil, err
	}

	var limiter *catrate.Limiter
	if len(o.logRates) != 0 {
		if limiter, err = newLimiter(o.logRates); err != nil {
			return nil, err
		}
	}

	return &Multiplexer{
		out:     out,
		logger:  o.logger,
		limiter: limiter,
		handles: make(map[int]*handle),
		ready:   make(chan struct{}),
		cfg:     cfg,
	}, nil
}

func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source: log rate: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// Run binds the source socket, then dispatches readiness events until the
// context is canceled, Stop is called, or polling fails. Setup failures are
// returned without entering the loop. All handles are disposed, and the
// socket path removed, before Run returns. Run may only be called once.
func (m *Multiplexer) Run(ctx context.Context) (err error) {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	defer context.AfterFunc(ctx, m.Stop)()

	p, err := poller.New(m.cfg.MaxEvents)
	if err != nil {
		return fmt.Errorf("source: create poller: %w", err)
	}
	m.pollerMu.Lock()
	m.poller = p
	m.pollerMu.Unlock()

	defer m.shutdown()

	fd, err := endpoint.Listen(m.cfg.Address, m.cfg.Transport, m.cfg.Backlog)
	if err != nil {
		return err
	}

	h := &handle{fd: fd, kind: kindListener}
	if m.cfg.Transport == endpoint.Datagram {
		h.kind = kindDatagram
		h.buf = make([]byte, m.cfg.ChunkSize)
	}
	if err := m.register(h); err != nil {
		_ = unix.Unlink(m.cfg.Address)
		return fmt.Errorf("source: register %s: %w", m.cfg.Address, err)
	}

	m.logger.Info().
		Str(`address`, m.cfg.Address).
		Stringer(`transport`, m.cfg.Transport).
		Log(`source: listening`)

	close(m.ready)

	for !m.stopped.Load() {
		if _, err := p.Poll(m.cfg.PollTimeout); err != nil {
			m.logger.Err().
				Err(err).
				Log(`source: poll failed`)
			return fmt.Errorf("source: poll: %w", err)
		}
	}

	return nil
}

func (m *Multiplexer) shutdown() {
	var listening bool
	for _, h := range m.handles {
		if h.kind != kindStream {
			listening = true
		}
		m.dispose(h)
	}
	if listening {
		if err := unix.Unlink(m.cfg.Address); err != nil {
			m.logger.Debug().
				Str(`address`, m.cfg.Address).
				Err(err).
				Log(`source: remove socket path failed`)
		}
	}

	m.pollerMu.Lock()
	p := m.poller
	m.poller = nil
	m.pollerMu.Unlock()

	_ = p.Close()

	m.logger.Info().
		Str(`address`, m.cfg.Address).
		Log(`source: stopped`)
}

// Stop requests that Run exit, waking it if it is blocked. It is safe to
// call from any goroutine, any number of times.
func (m *Multiplexer) Stop() {
	m.stopped.Store(true)
	m.pollerMu.Lock()
	defer m.pollerMu.Unlock()
	if m.poller != nil {
		_ = m.poller.Wake()
	}
}

// Ready is closed once the source socket has been bound and registered.
func (m *Multiplexer) Ready() <-chan struct{} {
	return m.ready
}
