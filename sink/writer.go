// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package sink implements the consumer side of the relay: a single
// goroutine which drains an io.Reader (typically a ringbuf.RingBuffer) into a
// destination, reconnecting forever.
package sink

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
)

const (
	DefaultChunkSize   = 16 * 1024
	DefaultBackoff     = time.Second
	DefaultBindDir     = `/var/tmp`
	DefaultSendTimeout = time.Second
)

var (
	ErrAlreadyStarted = errors.New("sink: writer already started")
	ErrNilReader      = errors.New("sink: nil reader")

	errStopped = errors.New("sink: stopped")
)

type (
	// Config models the destination, and the writer's tunables.
	Config struct {
		// Address is the path of the destination unix socket.
		Address   string
		Transport endpoint.Transport
		// ChunkSize bounds each read from the input, and must be at least
		// as large as any single segment the input may hold.
		ChunkSize int
		// Backoff is the delay between failed connection attempts.
		Backoff time.Duration
		// BindDir is the directory of the temporary local address, see
		// endpoint.DialOptions.
		BindDir     string
		SendTimeout time.Duration
	}

	// SegmentReader is implemented by inputs which can report the
	// boundaries of the data they return, e.g. ringbuf.RingBuffer.
	SegmentReader interface {
		io.Reader
		ReadSegments(p []byte, lens []int) (int, []int, error)
	}

	// Writer relays everything read from its input to the destination.
	//
	// Data is read (and therefore removed from the input) before it is
	// sent, and any chunk that could not be sent, due to a failed
	// destination, is discarded. See Run.
	//
	// For Datagram destinations, if the input is a SegmentReader, each
	// segment of a chunk is sent as its own datagram, rather than one
	// datagram per chunk, so message boundaries survive the relay. Other
	// inputs are sent one datagram per chunk.
	Writer struct {
		in       io.Reader
		segments SegmentReader
		dialer   Dialer
		logger   *logiface.Logger[logiface.Event]
		limiter  *catrate.Limiter
		stopCh   chan struct{}
		buf      []byte
		lens     []int
		cfg      Config
		stats    stats
		stopOnce sync.Once
		started  atomic.Bool
	}

	// Stats are cumulative counters, see Writer.Stats.
	Stats struct {
		Connects     uint64
		DialFailures uint64
		SendFailures uint64
		SentBytes    uint64
		// DiscardedBytes were read from the input, but could not be sent.
		DiscardedBytes uint64
	}

	stats struct {
		connects       atomic.Uint64
		dialFailures   atomic.Uint64
		sendFailures   atomic.Uint64
		sentBytes      atomic.Uint64
		discardedBytes atomic.Uint64
	}
)

// New validates the config, applying defaults. If the input implements
// SegmentReader, and the transport is Datagram, each segment is sent as a
// separate datagram.
func New(cfg Config, in io.Reader, opts ...Option) (*Writer, error) {
	if in == nil {
		return nil, ErrNilReader
	}
	if !cfg.Transport.Valid() {
		return nil, fmt.Errorf("sink: invalid transport: %s", cfg.Transport)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.BindDir == `` {
		cfg.BindDir = DefaultBindDir
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	o, err := resolveWriterOptions(opts)
	if err != nil {
		return nil, err
	}

	if o.dialer == nil {
		if cfg.Address == `` {
			return nil, errors.New("sink: address required")
		}
		o.dialer = &SocketDialer{
			Address:   cfg.Address,
			Transport: cfg.Transport,
			Options: endpoint.DialOptions{
				BindDir:     cfg.BindDir,
				SendTimeout: cfg.SendTimeout,
			},
		}
	}

	var limiter *catrate.Limiter
	if len(o.logRates) != 0 {
		if limiter, err = newLimiter(o.logRates); err != nil {
			return nil, err
		}
	}

	w := &Writer{
		in:      in,
		dialer:  o.dialer,
		logger:  o.logger,
		limiter: limiter,
		stopCh:  make(chan struct{}),
		buf:     make([]byte, cfg.ChunkSize),
		cfg:     cfg,
	}
	if cfg.Transport == endpoint.Datagram {
		w.segments, _ = in.(SegmentReader)
	}

	return w, nil
}

func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink: log rate: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// Run connects to the destination, retrying after Backoff on failure, then
// relays the input until a send fails (reconnecting), or it is stopped.
//
// Run returns nil once the input returns io.EOF, or after Stop (or
// cancellation of ctx). Note that neither will unblock a pending read, the
// input must be closed separately, e.g. ringbuf.RingBuffer.Interrupt. Any
// other input error, such as io.ErrShortBuffer (a segment larger than
// ChunkSize), is returned.
func (w *Writer) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	defer context.AfterFunc(ctx, w.Stop)()

	for !w.stopping() {
		conn, err := w.dialer.Dial(ctx)
		if err != nil {
			w.stats.dialFailures.Add(1)
			if _, ok := w.limiter.Allow(`dial`); ok {
				w.logger.Warning().
					Str(`address`, w.cfg.Address).
					Dur(`backoff`, w.cfg.Backoff).
					Err(err).
					Log(`sink: destination unavailable`)
			}
			if !w.sleep(w.cfg.Backoff) {
				break
			}
			continue
		}

		w.stats.connects.Add(1)
		w.logger.Info().
			Str(`address`, w.cfg.Address).
			Stringer(`transport`, w.cfg.Transport).
			Log(`sink: connected`)

		readErr, sendErr := w.relay(conn)

		if err := conn.Close(); err != nil {
			w.logger.Debug().
				Err(err).
				Log(`sink: close failed`)
		}

		switch {
		case readErr == io.EOF:
			return nil
		case readErr != nil:
			w.logger.Err().
				Err(readErr).
				Log(`sink: read failed`)
			return fmt.Errorf("sink: read: %w", readErr)
		case sendErr != nil:
			w.stats.sendFailures.Add(1)
			if _, ok := w.limiter.Allow(`send`); ok {
				w.logger.Warning().
					Str(`address`, w.cfg.Address).
					Err(sendErr).
					Log(`sink: send failed, reconnecting`)
			}
		}
	}

	return nil
}

// relay sends chunks until an error occurs, or Writer.Stop is called.
func (w *Writer) relay(conn io.Writer) (readErr, sendErr error) {
	for !w.stopping() {
		var n int
		if w.segments != nil {
			n, w.lens, readErr = w.segments.ReadSegments(w.buf, w.lens[:0])
		} else {
			n, readErr = w.in.Read(w.buf)
			w.lens = w.lens[:0]
		}
		if readErr != nil {
			if readErr == io.EOF && n != 0 {
				// send what we have, the next read will return EOF again
				readErr = nil
			} else {
				return readErr, nil
			}
		}
		if n == 0 {
			continue
		}

		if sendErr = w.send(conn, w.buf[:n], w.lens); sendErr != nil {
			if sendErr == errStopped {
				sendErr = nil
			}
			return nil, sendErr
		}
	}
	return nil, nil
}

// send writes p, as one datagram per segment if lens is non-empty, otherwise
// as a single write (which may be partial, for streams).
func (w *Writer) send(conn io.Writer, p []byte, lens []int) error {
	if len(lens) == 0 {
		return w.writeAll(conn, p)
	}
	var off int
	for _, l := range lens {
		if err := w.writeAll(conn, p[off:off+l]); err != nil {
			w.stats.discardedBytes.Add(uint64(len(p) - off - l))
			return err
		}
		off += l
	}
	return nil
}

// writeAll retries until p is fully written, advancing past partial
// writes. Temporary failures, e.g. a send timeout, are retried until the
// writer is stopped. The unsent remainder is discarded on error.
func (w *Writer) writeAll(conn io.Writer, p []byte) error {
	for off := 0; off < len(p); {
		n, err := conn.Write(p[off:])
		if n > 0 {
			off += n
			w.stats.sentBytes.Add(uint64(n))
		}
		switch {
		case err == nil && n == 0:
			err = io.ErrShortWrite
		case err == nil:
			continue
		case isTemporary(err):
			if w.stopping() {
				err = errStopped
				break
			}
			continue
		}
		w.stats.discardedBytes.Add(uint64(len(p) - off))
		return err
	}
	return nil
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// sleep waits for d, returning false if the writer was stopped first.
func (w *Writer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	}
}

func (w *Writer) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// Stop requests that Run exit, interrupting any backoff. It is safe to call
// from any goroutine, any number of times.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Stats returns a snapshot of the cumulative counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Connects:       w.stats.connects.Load(),
		DialFailures:   w.stats.dialFailures.Load(),
		SendFailures:   w.stats.sendFailures.Load(),
		SentBytes:      w.stats.sentBytes.Load(),
		DiscardedBytes: w.stats.discardedBytes.Load(),
	}
}
