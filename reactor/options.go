package reactor

import "github.com/joeycumines/logiface"

// reactorOptions holds configuration applied during New.
type reactorOptions struct {
	backend Backend
	logger  *logiface.Logger[logiface.Event]
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*reactorOptions) error
}

func (o *optionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyFunc(opts)
}

// WithBackend selects the readiness backend. The default resolves to the
// platform's scalable backend; New fails with ErrBackendUnavailable if the
// requested backend does not exist on this platform.
func WithBackend(b Backend) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.backend = b
		return nil
	}}
}

// WithLogger sets the structured logger for this reactor. When unset, the
// reactor falls back to the coro package logger, then to the standard log
// package.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies Option instances to reactorOptions.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		backend: BackendDefault,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
