package reactor

import (
	"errors"
	"time"
)

// Interest is the kind of readiness being waited for on a descriptor.
type Interest uint32

const (
	// InterestRead indicates interest in the descriptor becoming readable.
	InterestRead Interest = 1 << iota
	// InterestWrite indicates interest in the descriptor becoming writable.
	InterestWrite
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "readable"
	case InterestWrite:
		return "writable"
	default:
		return "readable|writable"
	}
}

// Backend selects the readiness polling implementation. Selection is a
// startup-time choice with no behavioral difference visible to callers
// beyond performance.
type Backend int

const (
	// BackendDefault picks the best backend for the platform: epoll on
	// Linux, kqueue on Darwin.
	BackendDefault Backend = iota
	// BackendSelect is the portable backend. The entire interest set is
	// re-submitted on every poll, so cost scales with descriptor count.
	BackendSelect
	// BackendEpoll is the Linux edge-registration backend; interests are
	// registered incrementally and only fired events are reported.
	BackendEpoll
	// BackendKqueue is the Darwin equivalent of BackendEpoll.
	BackendKqueue
)

func (b Backend) String() string {
	switch b {
	case BackendDefault:
		return "default"
	case BackendSelect:
		return "select"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	default:
		return "unknown"
	}
}

// Standard errors.
var (
	// ErrBackendUnavailable is returned by New when the requested backend is
	// not supported on this platform.
	ErrBackendUnavailable = errors.New("reactor: backend unavailable on this platform")

	// ErrFDOutOfRange is reported when a descriptor cannot be represented by
	// the active backend (the select backend is limited to FD_SETSIZE).
	ErrFDOutOfRange = errors.New("reactor: fd out of range for backend")

	// ErrAlreadyRunning is returned when Run is called on a reactor that is
	// already running.
	ErrAlreadyRunning = errors.New("reactor: already running")
)

// poller abstracts how OS readiness is obtained. Implementations are
// single-threaded: they are touched only from the loop thread, so they
// perform no locking.
type poller interface {
	// Register adds one (fd, kind) interest. The reactor guarantees at most
	// one registration per (fd, kind) pair at a time.
	Register(fd int, kind Interest) error

	// Unregister removes one (fd, kind) interest. Removing an interest the
	// kernel has already retired (a fired one-shot event) is not an error.
	Unregister(fd int, kind Interest) error

	// Poll blocks for up to timeout (negative means indefinitely) and calls
	// deliver once per ready (fd, kind). deliver may unregister interests.
	Poll(timeout time.Duration, deliver func(fd int, kind Interest)) error

	// Close releases the backend's kernel resources.
	Close() error
}

// timeoutMs converts a poll timeout to milliseconds for epoll-style APIs,
// rounding sub-millisecond delays up so a pending timer never busy-spins.
func timeoutMs(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d == 0 {
		return 0
	}
	if d < time.Millisecond {
		return 1
	}
	return int(d.Milliseconds())
}
