package ringbuf

import (
	"os"
	"strconv"
	"time"
)

// DropMarker prefixes the content written by FileNotifier.
const DropMarker = `syslog-safer: DROP @`

// Notifier receives drop notifications. Implementations are called outside
// of the buffer's lock, from the goroutine that performed the write.
type Notifier interface {
	NotifyDrop(now time.Time) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(now time.Time) error

func (f NotifierFunc) NotifyDrop(now time.Time) error { return f(now) }

// FileNotifier overwrites the named file with DropMarker followed by the unix
// time of the drop, e.g. "syslog-safer: DROP @1700000000".
type FileNotifier string

func (f FileNotifier) NotifyDrop(now time.Time) error {
	b := make([]byte, 0, len(DropMarker)+20)
	b = append(b, DropMarker...)
	b = strconv.AppendInt(b, now.Unix(), 10)
	return os.WriteFile(string(f), b, 0644)
}
