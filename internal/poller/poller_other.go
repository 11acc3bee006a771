//go:build !linux

package poller

import (
	"time"
)

// Poller is only implemented on linux.
type Poller struct{}

func New(int) (*Poller, error) { return nil, ErrUnsupported }

func (*Poller) Register(int, Events, Callback) error { return ErrUnsupported }

func (*Poller) Unregister(int) error { return ErrUnsupported }

func (*Poller) Poll(time.Duration) (int, error) { return 0, ErrUnsupported }

func (*Poller) Wake() error { return ErrUnsupported }

func (*Poller) Close() error { return nil }
