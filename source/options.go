package source

import (
	"time"

	"github.com/joeycumines/logiface"
)

// multiplexerOptions holds configuration options for Multiplexer creation.
type multiplexerOptions struct {
	logger   *logiface.Logger[logiface.Event]
	logRates map[time.Duration]int
}

// Option configures a Multiplexer instance.
type Option interface {
	applyMultiplexer(*multiplexerOptions) error
}

// multiplexerOptionImpl implements Option.
type multiplexerOptionImpl struct {
	applyMultiplexerFunc func(*multiplexerOptions) error
}

func (o *multiplexerOptionImpl) applyMultiplexer(opts *multiplexerOptions) error {
	return o.applyMultiplexerFunc(opts)
}

// WithLogger configures structured logging. Per-connection events are
// logged at debug level, failures of the loop itself at error level.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &multiplexerOptionImpl{func(opts *multiplexerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLogRate overrides the per-category rate limits, applied to warnings
// that can repeat on every readiness event, e.g. accept failing with EMFILE.
// A nil map disables rate limiting.
func WithLogRate(rates map[time.Duration]int) Option {
	return &multiplexerOptionImpl{func(opts *multiplexerOptions) error {
		opts.logRates = rates
		return nil
	}}
}

// resolveMultiplexerOptions applies Option instances to multiplexerOptions.
func resolveMultiplexerOptions(opts []Option) (*multiplexerOptions, error) {
	cfg := &multiplexerOptions{
		logRates: map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyMultiplexer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
