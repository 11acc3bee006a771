package sink

import (
	"time"

	"github.com/joeycumines/logiface"
)

// writerOptions holds configuration options for Writer creation.
type writerOptions struct {
	dialer   Dialer
	logger   *logiface.Logger[logiface.Event]
	logRates map[time.Duration]int
}

// Option configures a Writer instance.
type Option interface {
	applyWriter(*writerOptions) error
}

// writerOptionImpl implements Option.
type writerOptionImpl struct {
	applyWriterFunc func(*writerOptions) error
}

func (o *writerOptionImpl) applyWriter(opts *writerOptions) error {
	return o.applyWriterFunc(opts)
}

// WithLogger configures structured logging. Repeated failures to reach the
// destination are rate limited, see WithLogRate.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &writerOptionImpl{func(opts *writerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDialer replaces the default, unix socket, Dialer.
func WithDialer(dialer Dialer) Option {
	return &writerOptionImpl{func(opts *writerOptions) error {
		opts.dialer = dialer
		return nil
	}}
}

// WithLogRate overrides the per-category rate limits, applied to the dial
// and send failure warnings. A nil map disables rate limiting.
func WithLogRate(rates map[time.Duration]int) Option {
	return &writerOptionImpl{func(opts *writerOptions) error {
		opts.logRates = rates
		return nil
	}}
}

// resolveWriterOptions applies Option instances to writerOptions.
func resolveWriterOptions(opts []Option) (*writerOptions, error) {
	cfg := &writerOptions{
		logRates: map[time.Duration]int{
			time.Minute: 6,
			time.Hour:   60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyWriter(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
