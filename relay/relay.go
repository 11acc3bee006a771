// Package relay wires the source, ring buffer, and sink together, running
// them until the context is canceled, or either side fails.
package relay

import (
	"context"
	"fmt"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-syslogsafer/config"
	"github.com/joeycumines/go-syslogsafer/ringbuf"
	"github.com/joeycumines/go-syslogsafer/sink"
	"github.com/joeycumines/go-syslogsafer/source"
)

// Relay is a configured, but not yet started, relay.
type Relay struct {
	cfg    config.Config
	logger *logiface.Logger[logiface.Event]
	ring   *ringbuf.RingBuffer
	source *source.Multiplexer
	sink   *sink.Writer
}

// New validates cfg, and allocates the ring buffer.
func New(cfg config.Config, logger *logiface.Logger[logiface.Event]) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ring, err := ringbuf.New(cfg.BufferSize.Int(),
		ringbuf.WithNotifyFile(cfg.NotifyFile),
		ringbuf.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	src, err := source.New(source.Config{
		Address:     cfg.Source,
		Transport:   cfg.Transport,
		ChunkSize:   cfg.ChunkSize.Int(),
		PollTimeout: cfg.PollTimeout,
	}, ring, source.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	dst, err := sink.New(sink.Config{
		Address:     cfg.Dest,
		Transport:   cfg.Transport,
		ChunkSize:   cfg.WriterChunkSize.Int(),
		Backoff:     cfg.ReconnectBackoff,
		BindDir:     cfg.BindDir,
		SendTimeout: cfg.SendTimeout,
	}, ring, sink.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	return &Relay{
		cfg:    cfg,
		logger: logger,
		ring:   ring,
		source: src,
		sink:   dst,
	}, nil
}

// Run starts the sink, then runs the source until ctx is canceled, after
// which the sink is stopped, and the ring buffer interrupted. The first
// error from either side is returned, after both have exited.
//
// The pid file, if configured, is written (best effort) for the duration.
func (r *Relay) Run(ctx context.Context) error {
	if r.cfg.PidFile != `` {
		remove, err := WritePidFile(r.cfg.PidFile)
		if err != nil {
			r.logger.Warning().
				Str(`pidfile`, r.cfg.PidFile).
				Err(err).
				Log(`relay: failed to write pid file`)
		} else {
			defer remove()
		}
	}

	r.logger.Notice().
		Str(`source`, r.cfg.Source).
		Str(`dest`, r.cfg.Dest).
		Stringer(`transport`, r.cfg.Transport).
		Stringer(`buffer`, r.cfg.BufferSize).
		Log(`relay: starting`)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.sink.Run(gctx)
	})

	g.Go(func() error {
		defer func() {
			r.sink.Stop()
			r.ring.Interrupt()
		}()
		return r.source.Run(gctx)
	})

	err := g.Wait()

	rs, ss := r.ring.Stats(), r.sink.Stats()
	r.logger.Notice().
		Uint64(`written_segments`, rs.WrittenSegments).
		Uint64(`written_bytes`, rs.WrittenBytes).
		Uint64(`dropped_segments`, rs.DroppedSegments).
		Uint64(`dropped_bytes`, rs.DroppedBytes).
		Uint64(`drop_events`, rs.DropEvents).
		Uint64(`rejected`, rs.Rejected).
		Uint64(`sent_bytes`, ss.SentBytes).
		Uint64(`discarded_bytes`, ss.DiscardedBytes).
		Uint64(`connects`, ss.Connects).
		Int(`buffered_bytes`, r.ring.Len()).
		Log(`relay: stopped`)

	if err != nil {
		r.logger.Err().
			Err(err).
			Log(`relay: failed`)
	}

	return err
}

// Source exposes the source multiplexer, e.g. to wait until it is ready.
func (r *Relay) Source() *source.Multiplexer { return r.source }

// Stats returns a snapshot of the ring buffer counters.
func (r *Relay) Stats() ringbuf.Stats { return r.ring.Stats() }

// Run is shorthand for New followed by Relay.Run.
func Run(ctx context.Context, cfg config.Config, logger *logiface.Logger[logiface.Event]) error {
	r, err := New(cfg, logger)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
