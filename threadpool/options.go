package threadpool

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// defaultMaxWorkers bounds worker goroutines when WithMaxWorkers is unset.
const defaultMaxWorkers = 4

// poolOptions holds configuration applied during New.
type poolOptions struct {
	maxWorkers int
	logger     *logiface.Logger[logiface.Event]
}

// Option configures a Pool instance.
type Option interface {
	applyPool(*poolOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*poolOptions) error
}

func (o *optionImpl) applyPool(opts *poolOptions) error {
	return o.applyFunc(opts)
}

// WithMaxWorkers caps the number of concurrent worker goroutines. Workers
// are spawned lazily, up to n, as submissions outpace completions.
func WithMaxWorkers(n int) Option {
	return &optionImpl{func(opts *poolOptions) error {
		if n < 1 {
			return errors.New("threadpool: max workers must be at least 1")
		}
		opts.maxWorkers = n
		return nil
	}}
}

// WithLogger sets the structured logger for this pool. When unset, the pool
// falls back to the coro package logger, then to the standard log package.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *poolOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies Option instances to poolOptions.
func resolveOptions(opts []Option) (*poolOptions, error) {
	cfg := &poolOptions{
		maxWorkers: defaultMaxWorkers,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyPool(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
