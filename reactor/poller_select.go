//go:build linux || darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectFDLimit matches FD_SETSIZE; select cannot watch descriptors at or
// above it.
const selectFDLimit = 1024

// selectPoller is the portable fallback backend. The descriptor sets are
// rebuilt from the interest maps on every poll, so it works everywhere the
// select syscall exists but degrades as the interest count grows.
//
// Only touched from the loop thread; no locking.
type selectPoller struct {
	read  map[int]struct{}
	write map[int]struct{}
}

func newSelectPoller() (*selectPoller, error) {
	return &selectPoller{
		read:  make(map[int]struct{}),
		write: make(map[int]struct{}),
	}, nil
}

func (p *selectPoller) set(kind Interest) map[int]struct{} {
	if kind == InterestWrite {
		return p.write
	}
	return p.read
}

func (p *selectPoller) Register(fd int, kind Interest) error {
	if fd < 0 || fd >= selectFDLimit {
		return ErrFDOutOfRange
	}
	p.set(kind)[fd] = struct{}{}
	return nil
}

func (p *selectPoller) Unregister(fd int, kind Interest) error {
	delete(p.set(kind), fd)
	return nil
}

func (p *selectPoller) Poll(timeout time.Duration, deliver func(fd int, kind Interest)) error {
	var readSet, writeSet unix.FdSet
	nfds := 0
	for fd := range p.read {
		readSet.Set(fd)
		if fd >= nfds {
			nfds = fd + 1
		}
	}
	for fd := range p.write {
		writeSet.Set(fd)
		if fd >= nfds {
			nfds = fd + 1
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(int64(timeout))
		tv = &t
	}

	if err := sysSelect(nfds, &readSet, &writeSet, nil, tv); err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	// Snapshot ready descriptors before dispatch; deliver mutates the
	// interest maps.
	var ready [selectFDLimit]int
	n := 0
	for fd := range p.read {
		if readSet.IsSet(fd) {
			ready[n] = fd
			n++
		}
	}
	for i := 0; i < n; i++ {
		deliver(ready[i], InterestRead)
	}
	n = 0
	for fd := range p.write {
		if writeSet.IsSet(fd) {
			ready[n] = fd
			n++
		}
	}
	for i := 0; i < n; i++ {
		deliver(ready[i], InterestWrite)
	}
	return nil
}

func (p *selectPoller) Close() error {
	p.read = nil
	p.write = nil
	return nil
}
