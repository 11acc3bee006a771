// Package ringbuf implements a bounded, segment preserving, drop-oldest byte
// buffer, safe for concurrent use by one or more writers and readers.
//
// Each Write is stored as one segment. When a write does not fit, whole
// segments are evicted from the front until it does, and an optional
// Notifier is informed (once per write). Reads block until data is available,
// and return only whole segments, which makes the buffer suitable for relaying
// datagrams, or any other framed data.
package ringbuf
