// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ringbuf

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

var (
	// ErrTooLarge is returned by RingBuffer.Write if the input exceeds the
	// buffer's capacity.
	ErrTooLarge = errors.New("ringbuf: write exceeds capacity")

	// ErrInvalidCapacity is returned by New if the capacity is not positive.
	ErrInvalidCapacity = errors.New("ringbuf: capacity must be positive")
)

// initialSegments is the starting size of the segment queue, which grows as
// required.
const initialSegments = 64

// timeNow is overridden in tests.
var timeNow = time.Now

type (
	// RingBuffer is a bounded FIFO of byte segments, one per Write call,
	// which evicts the oldest whole segments to admit new ones. It never
	// blocks writers. Readers block until data is available, or the buffer
	// is interrupted.
	//
	// Segments are never split: Read delivers only whole segments, and
	// eviction removes only whole segments.
	RingBuffer struct {
		cond        sync.Cond
		storage     []byte
		segments    *queue[segment]
		notifier    Notifier
		logger      *logiface.Logger[logiface.Event]
		dropLimiter *catrate.Limiter
		stats       Stats
		mu          sync.Mutex
		shutdown    bool
	}

	// segment is a region of storage, [start, end), where end <= start
	// indicates a region that wraps around. The end is always within
	// (0, capacity].
	segment struct {
		start int
		end   int
	}

	// Stats are cumulative counters, see RingBuffer.Stats.
	Stats struct {
		// WrittenSegments is the number of accepted, non-empty writes.
		WrittenSegments uint64
		// WrittenBytes is the total length of all accepted writes.
		WrittenBytes uint64
		ReadSegments uint64
		ReadBytes    uint64
		// DroppedSegments is the number of segments evicted to make space.
		DroppedSegments uint64
		DroppedBytes    uint64
		// DropEvents is the number of writes which evicted at least one
		// segment, i.e. the number of drop notifications.
		DropEvents uint64
		// Rejected is the number of writes refused with ErrTooLarge.
		Rejected uint64
	}
)

var (
	// compile time assertions

	_ io.Reader = (*RingBuffer)(nil)
	_ io.Writer = (*RingBuffer)(nil)
)

// New initialises a RingBuffer with the given capacity, in bytes. The
// storage is allocated up front, and never resized.
func New(capacity int, opts ...Option) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	cfg, err := resolveBufferOptions(opts)
	if err != nil {
		return nil, err
	}

	dropLimiter, err := newDropLimiter(cfg.dropLogRates)
	if err != nil {
		return nil, err
	}

	x := &RingBuffer{
		storage:     make([]byte, capacity),
		segments:    newQueue[segment](initialSegments),
		notifier:    cfg.notifier,
		logger:      cfg.logger,
		dropLimiter: dropLimiter,
	}
	x.cond.L = &x.mu

	return x, nil
}

func newDropLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ringbuf: drop log rate: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// Write stores p as a single segment, evicting the oldest segments as
// necessary. It returns ErrTooLarge, without modifying the buffer, if p
// cannot fit even in an empty buffer. Empty writes are ignored.
//
// If any segments were evicted, the notifier (if any) is called exactly once,
// after the lock has been released.
func (x *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	capacity := len(x.storage)
	if n > capacity {
		x.mu.Lock()
		x.stats.Rejected++
		x.mu.Unlock()
		x.logger.Debug().
			Int(`bytes`, n).
			Int(`capacity`, capacity).
			Log(`ringbuf: rejected oversized write`)
		return 0, ErrTooLarge
	}

	x.mu.Lock()

	var droppedSegments, droppedBytes int
	for used := x.usedLocked(); used+n > capacity; used = x.usedLocked() {
		// always terminates: each iteration shrinks the queue, and the
		// condition cannot hold once it is empty (n <= capacity)
		l := x.segments.PopFront().len(capacity)
		droppedSegments++
		droppedBytes += l
	}

	start := 0
	if x.segments.Len() != 0 {
		start = x.segments.Back().end
		if start == capacity {
			start = 0
		}
	}
	end := start + n
	if end > capacity {
		end -= capacity
	}

	// two step copy, the second covering any wraparound
	c := copy(x.storage[start:], p)
	copy(x.storage, p[c:])

	x.segments.PushBack(segment{start: start, end: end})

	x.stats.WrittenSegments++
	x.stats.WrittenBytes += uint64(n)
	if droppedSegments != 0 {
		x.stats.DroppedSegments += uint64(droppedSegments)
		x.stats.DroppedBytes += uint64(droppedBytes)
		x.stats.DropEvents++
	}
	segments := x.segments.Len()

	x.cond.Signal()
	x.mu.Unlock()

	x.logger.Debug().
		Int(`bytes`, n).
		Int(`segments`, segments).
		Log(`ringbuf: push`)

	if droppedSegments != 0 {
		x.dropped(droppedSegments, droppedBytes)
	}

	return n, nil
}

func (x *RingBuffer) dropped(segments, bytes int) {
	now := timeNow()

	if x.notifier != nil {
		if err := x.notifier.NotifyDrop(now); err != nil {
			x.logger.Debug().
				Err(err).
				Log(`ringbuf: drop notification failed`)
		}
	}

	if _, ok := x.dropLimiter.Allow(`drop`); ok {
		x.logger.Warning().
			Int(`segments`, segments).
			Int(`bytes`, bytes).
			Log(`ringbuf: buffer full, dropped oldest data`)
	}
}

// Read blocks until at least one segment is available, then copies as many
// whole segments, from the front, as fit within p. It returns io.EOF only
// once the buffer has been interrupted and fully drained.
//
// If the front segment is larger than p, nothing is copied, and
// io.ErrShortBuffer is returned. The segment remains queued.
func (x *RingBuffer) Read(p []byte) (int, error) {
	n, _, err := x.read(p, nil, false)
	return n, err
}

// ReadSegments behaves like Read, and additionally appends the length of
// each segment copied into p to lens, returning the resulting slice.
func (x *RingBuffer) ReadSegments(p []byte, lens []int) (int, []int, error) {
	return x.read(p, lens, true)
}

func (x *RingBuffer) read(p []byte, lens []int, segments bool) (n int, _ []int, err error) {
	capacity := len(x.storage)

	x.mu.Lock()

	for x.segments.Len() == 0 && !x.shutdown {
		x.cond.Wait()
	}

	if x.segments.Len() == 0 {
		x.mu.Unlock()
		return 0, lens, io.EOF
	}

	var count int
	for x.segments.Len() != 0 {
		seg := x.segments.Front()
		l := seg.len(capacity)
		if n+l > len(p) {
			break
		}
		if seg.end > seg.start {
			copy(p[n:], x.storage[seg.start:seg.end])
		} else {
			c := copy(p[n:], x.storage[seg.start:])
			copy(p[n+c:], x.storage[:seg.end])
		}
		x.segments.PopFront()
		n += l
		count++
		if segments {
			lens = append(lens, l)
		}
	}

	x.stats.ReadSegments += uint64(count)
	x.stats.ReadBytes += uint64(n)
	remaining := x.segments.Len()

	x.mu.Unlock()

	if count == 0 {
		return 0, lens, io.ErrShortBuffer
	}

	x.logger.Debug().
		Int(`bytes`, n).
		Int(`segments`, count).
		Int(`remaining`, remaining).
		Log(`ringbuf: pop`)

	return n, lens, nil
}

// Interrupt marks the buffer as shut down, waking all blocked readers.
// Subsequent reads drain any remaining segments, then return io.EOF.
// Writes are still accepted.
func (x *RingBuffer) Interrupt() {
	x.mu.Lock()
	x.shutdown = true
	x.cond.Broadcast()
	x.mu.Unlock()
}

// Len returns the number of bytes currently buffered.
func (x *RingBuffer) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.usedLocked()
}

// Segments returns the number of segments currently buffered.
func (x *RingBuffer) Segments() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.segments.Len()
}

// Cap returns the fixed capacity, in bytes.
func (x *RingBuffer) Cap() int {
	return len(x.storage)
}

// Stats returns a snapshot of the cumulative counters.
func (x *RingBuffer) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stats
}

// usedLocked returns the circular extent [front.start, back.end), where an
// equal start and end means the buffer is full.
func (x *RingBuffer) usedLocked() int {
	if x.segments.Len() == 0 {
		return 0
	}
	return segment{
		start: x.segments.Front().start,
		end:   x.segments.Back().end,
	}.len(len(x.storage))
}

func (x segment) len(capacity int) int {
	if x.end > x.start {
		return x.end - x.start
	}
	return capacity - x.start + x.end
}
