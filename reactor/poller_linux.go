//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux backend. Interests are registered incrementally
// with the kernel, so poll cost scales with ready events rather than with
// the number of registered descriptors.
//
// Only touched from the loop thread; no locking.
type epollPoller struct {
	epfd     int
	masks    map[int]Interest
	eventBuf [128]unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:  epfd,
		masks: make(map[int]Interest),
	}, nil
}

func (p *epollPoller) Register(fd int, kind Interest) error {
	old := p.masks[fd]
	next := old | kind
	if err := p.ctl(fd, old, next); err != nil {
		return err
	}
	p.masks[fd] = next
	return nil
}

func (p *epollPoller) Unregister(fd int, kind Interest) error {
	old := p.masks[fd]
	next := old &^ kind
	if next == old {
		return nil
	}
	if err := p.ctl(fd, old, next); err != nil {
		return err
	}
	if next == 0 {
		delete(p.masks, fd)
	} else {
		p.masks[fd] = next
	}
	return nil
}

// ctl issues the ADD/MOD/DEL transition between two interest masks.
func (p *epollPoller) ctl(fd int, old, next Interest) error {
	switch {
	case old == 0 && next != 0:
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: epollEvents(next),
			Fd:     int32(fd),
		})
	case old != 0 && next == 0:
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case old != next:
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
			Events: epollEvents(next),
			Fd:     int32(fd),
		})
	default:
		return nil
	}
}

func (p *epollPoller) Poll(timeout time.Duration, deliver func(fd int, kind Interest)) error {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		fd := int(ev.Fd)
		mask := p.masks[fd]
		// Error and hangup conditions wake every registered interest so the
		// waiter observes the failure from its own read or write.
		fired := ev.Events
		if fired&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			fired |= unix.EPOLLIN | unix.EPOLLOUT
		}
		if fired&unix.EPOLLIN != 0 && mask&InterestRead != 0 {
			deliver(fd, InterestRead)
		}
		// Re-read the mask: deliver may have unregistered the write side.
		if fired&unix.EPOLLOUT != 0 && p.masks[fd]&InterestWrite != 0 {
			deliver(fd, InterestWrite)
		}
	}
	return nil
}

func (p *epollPoller) Close() error {
	p.masks = nil
	return unix.Close(p.epfd)
}

func epollEvents(mask Interest) uint32 {
	var events uint32
	if mask&InterestRead != 0 {
		events |= unix.EPOLLIN
	}
	if mask&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}
