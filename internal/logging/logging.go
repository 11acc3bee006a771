// Package logging constructs the structured loggers used throughout the
// module, backed by stumpy (JSON lines).
package logging

import (
	"bytes"
	"io"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// New returns a JSON logger writing to w, which is synchronized, for use
// by multiple goroutines. A nil w returns a nil (disabled) logger.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		return nil
	}
	if _, ok := w.(*SyncWriter); !ok {
		w = &SyncWriter{W: w}
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Level maps the verbose flag to a log level.
func Level(verbose bool) logiface.Level {
	if verbose {
		return logiface.LevelDebug
	}
	return logiface.LevelInformational
}

// SyncWriter serializes writes to W.
type SyncWriter struct {
	W  io.Writer
	mu sync.Mutex
}

func (x *SyncWriter) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.W.Write(p)
}

// Buffer is a goroutine safe bytes.Buffer, useful to capture logs.
type Buffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (x *Buffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}

func (x *Buffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.String()
}
