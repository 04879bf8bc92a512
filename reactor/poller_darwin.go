//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin backend. Each interest is registered as a
// one-shot kevent filter, which matches the reactor's own semantics: a
// delivered readiness wakes exactly one waiter and retires the interest.
//
// Only touched from the loop thread; no locking.
type kqueuePoller struct {
	kq       int
	eventBuf [128]unix.Kevent_t
}

func newKqueuePoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq}, nil
}

func (p *kqueuePoller) Register(fd int, kind Interest) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: kqueueFilter(kind),
		Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Unregister(fd int, kind Interest) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: kqueueFilter(kind),
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	// A fired one-shot filter is already gone from the kernel.
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Poll(timeout time.Duration, deliver func(fd int, kind Interest)) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		switch ev.Filter {
		case unix.EVFILT_READ:
			deliver(int(ev.Ident), InterestRead)
		case unix.EVFILT_WRITE:
			deliver(int(ev.Ident), InterestWrite)
		}
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func kqueueFilter(kind Interest) int16 {
	if kind == InterestWrite {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}
