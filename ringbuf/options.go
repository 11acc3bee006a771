// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ringbuf

import (
	"time"

	"github.com/joeycumines/logiface"
)

// bufferOptions holds configuration options for RingBuffer creation.
type bufferOptions struct {
	notifier     Notifier
	logger       *logiface.Logger[logiface.Event]
	dropLogRates map[time.Duration]int
}

// Option configures a RingBuffer instance.
type Option interface {
	applyBuffer(*bufferOptions) error
}

// bufferOptionImpl implements Option.
type bufferOptionImpl struct {
	applyBufferFunc func(*bufferOptions) error
}

func (o *bufferOptionImpl) applyBuffer(opts *bufferOptions) error {
	return o.applyBufferFunc(opts)
}

// WithNotifier configures the target of drop notifications. At most one
// notification is sent per Write call, regardless of how many segments that
// call evicted.
func WithNotifier(notifier Notifier) Option {
	return &bufferOptionImpl{func(opts *bufferOptions) error {
		opts.notifier = notifier
		return nil
	}}
}

// WithNotifyFile is shorthand for WithNotifier(FileNotifier(path)). An empty
// path disables notifications.
func WithNotifyFile(path string) Option {
	return &bufferOptionImpl{func(opts *bufferOptions) error {
		if path == `` {
			opts.notifier = nil
		} else {
			opts.notifier = FileNotifier(path)
		}
		return nil
	}}
}

// WithLogger attaches a structured logger. Drops are logged at warning
// level, and (at debug level) every push and pop.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &bufferOptionImpl{func(opts *bufferOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDropLogRate overrides the rate limits applied to the drop warning log.
// See [github.com/joeycumines/go-catrate.NewLimiter] for the format. A nil
// map disables rate limiting.
func WithDropLogRate(rates map[time.Duration]int) Option {
	return &bufferOptionImpl{func(opts *bufferOptions) error {
		opts.dropLogRates = rates
		return nil
	}}
}

// resolveBufferOptions applies Option instances to bufferOptions.
func resolveBufferOptions(opts []Option) (*bufferOptions, error) {
	cfg := &bufferOptions{
		dropLogRates: map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBuffer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
