package reactor

import (
	"container/heap"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/j4cbo/chiral/coro"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// Reactor multiplexes timers and file descriptor readiness for coroutines.
// All methods except New must be called from the loop thread; the reactor
// itself performs no locking.
type Reactor struct {
	poller    poller
	log       *logiface.Logger[logiface.Event]
	running   bool
	timers    timerHeap
	timerSeq  uint64
	waiters   map[int]*fdWaiter
	interests int
	closers   []io.Closer
}

// New constructs a Reactor. The zero options select the platform's best
// backend (epoll on Linux, kqueue on Darwin).
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := newPoller(cfg.backend)
	if err != nil {
		return nil, err
	}
	return &Reactor{
		poller:  p,
		log:     cfg.logger,
		waiters: make(map[int]*fdWaiter),
	}, nil
}

// Close releases the reactor's kernel resources. The reactor must not be
// running and must not be used afterwards.
func (r *Reactor) Close() error {
	if r.running {
		return ErrAlreadyRunning
	}
	return r.poller.Close()
}

// logger returns the effective logger, which may be nil.
func (r *Reactor) logger() *logiface.Logger[logiface.Event] {
	if r.log != nil {
		return r.log
	}
	return coro.Logger()
}

// --- timers ---

type timerEntry struct {
	when time.Time
	seq  uint64
	sig  *coro.Signal
}

// timerHeap orders entries by deadline, breaking ties by scheduling order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Schedule arranges for the returned signal to be invoked (with a nil value)
// after delay. A zero or negative delay fires on the next loop iteration.
// The signal is invoked at most once; if its waiter has been killed by then,
// the expiry is dropped.
func (r *Reactor) Schedule(delay time.Duration) *coro.Signal {
	return r.ScheduleAt(time.Now().Add(delay))
}

// ScheduleAt is Schedule with an absolute deadline.
func (r *Reactor) ScheduleAt(when time.Time) *coro.Signal {
	r.timerSeq++
	e := &timerEntry{
		when: when,
		seq:  r.timerSeq,
		sig:  coro.NewSignal(fmt.Sprintf("timer %s", when.Format(time.RFC3339Nano))),
	}
	heap.Push(&r.timers, e)
	return e.sig
}

// fireTimers invokes every timer whose deadline has passed, in deadline
// order.
func (r *Reactor) fireTimers(now time.Time) {
	for len(r.timers) > 0 && !r.timers[0].when.After(now) {
		e := heap.Pop(&r.timers).(*timerEntry)
		r.fireTimer(e)
	}
}

func (r *Reactor) fireTimer(e *timerEntry) {
	defer func() {
		if p := recover(); p != nil {
			if l := r.logger(); l != nil {
				l.Err().Any("panic", p).Log("panic resuming timer waiter")
			} else {
				log.Printf("reactor: panic resuming timer waiter: %v", p)
			}
		}
	}()
	if !e.sig.Fire(nil, nil) {
		if l := r.logger(); l != nil {
			l.Debug().Str("signal", e.sig.String()).Log("timer expired with no waiter")
		}
	}
}

// --- fd readiness ---

// fdWaiter tracks the at-most-one read and at-most-one write interest
// outstanding on a descriptor.
type fdWaiter struct {
	read  *ioWait
	write *ioWait
}

// ioWait is the wait condition returned by WaitForReadable and
// WaitForWritable. Binding registers the interest with the backend;
// unbinding (including by Coroutine.Kill) retires it.
type ioWait struct {
	r     *Reactor
	fd    int
	kind  Interest
	owner *coro.Coroutine
}

// WaitForReadable returns a wait condition that resumes its waiter (with a
// nil value) once fd is readable. At most one coroutine may wait for
// readability of a given descriptor at a time.
func (r *Reactor) WaitForReadable(fd int) coro.WaitCondition {
	return &ioWait{r: r, fd: fd, kind: InterestRead}
}

// WaitForWritable is WaitForReadable for the write side.
func (r *Reactor) WaitForWritable(fd int) coro.WaitCondition {
	return &ioWait{r: r, fd: fd, kind: InterestWrite}
}

func (w *ioWait) Bind(owner *coro.Coroutine) (coro.Value, error, bool) {
	if w.owner != nil {
		panic(fmt.Sprintf("reactor: %s already bound", w))
	}
	fw := w.r.waiters[w.fd]
	if fw != nil && fw.slot(w.kind) != nil {
		panic(fmt.Sprintf("reactor: duplicate %s interest on fd %d", w.kind, w.fd))
	}
	if err := w.r.poller.Register(w.fd, w.kind); err != nil {
		// Deliver the failure as an immediately ready error so the waiter
		// fails rather than hanging forever.
		return nil, err, true
	}
	if fw == nil {
		fw = &fdWaiter{}
		w.r.waiters[w.fd] = fw
	}
	*fw.slot(w.kind) = w
	w.r.interests++
	w.owner = owner
	return nil, nil, false
}

func (w *ioWait) Unbind(owner *coro.Coroutine) {
	if w.owner != owner {
		panic(fmt.Sprintf("reactor: %s not bound to %s", w, owner))
	}
	w.owner = nil
	w.r.removeInterest(w)
}

func (w *ioWait) String() string {
	return fmt.Sprintf("wait for fd %d %s", w.fd, w.kind)
}

// slot returns the pointer to the interest's position within the waiter.
func (fw *fdWaiter) slot(kind Interest) **ioWait {
	if kind == InterestWrite {
		return &fw.write
	}
	return &fw.read
}

// removeInterest drops w from the waiter table and retires its backend
// registration.
func (r *Reactor) removeInterest(w *ioWait) {
	fw := r.waiters[w.fd]
	if fw == nil || *fw.slot(w.kind) != w {
		return
	}
	*fw.slot(w.kind) = nil
	if fw.read == nil && fw.write == nil {
		delete(r.waiters, w.fd)
	}
	r.interests--
	if err := r.poller.Unregister(w.fd, w.kind); err != nil {
		if l := r.logger(); l != nil {
			l.Warning().Err(err).Int("fd", w.fd).Log("failed to retire fd interest")
		} else {
			log.Printf("reactor: failed to retire fd %d interest: %v", w.fd, err)
		}
	}
}

// dispatchReady consumes one readiness event from the backend.
func (r *Reactor) dispatchReady(fd int, kind Interest) {
	fw := r.waiters[fd]
	var w *ioWait
	if fw != nil {
		w = *fw.slot(kind)
	}
	if w == nil {
		// Interest retired between registration and delivery.
		if l := r.logger(); l != nil {
			l.Debug().Int("fd", fd).Str("kind", kind.String()).Log("readiness with no waiter")
		}
		return
	}
	owner := w.owner
	w.owner = nil
	r.removeInterest(w)
	r.safeResume(owner)
}

func (r *Reactor) safeResume(c *coro.Coroutine) {
	defer func() {
		if p := recover(); p != nil {
			if l := r.logger(); l != nil {
				l.Err().Any("panic", p).Int("coroutine", int(c.ID())).Log("panic resuming fd waiter")
			} else {
				log.Printf("reactor: panic resuming fd waiter %s: %v", c, p)
			}
		}
	}()
	c.Resume(nil, nil)
}

// --- run loop ---

// Run drives the reactor until no timers or fd interests remain, then closes
// everything registered via CloseOnExit and returns. It returns early, with
// the error, if the backend fails.
func (r *Reactor) Run() error {
	if r.running {
		return ErrAlreadyRunning
	}
	r.running = true
	defer func() {
		r.running = false
		r.closeAll()
	}()
	for {
		more, err := r.runOnce()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// runOnce performs one poll-dispatch-expire iteration. It reports false when
// the reactor has no remaining work.
func (r *Reactor) runOnce() (bool, error) {
	if len(r.timers) == 0 && r.interests == 0 {
		return false, nil
	}
	timeout := time.Duration(-1)
	if len(r.timers) > 0 {
		timeout = time.Until(r.timers[0].when)
		if timeout < 0 {
			timeout = 0
		}
	}
	if err := r.poller.Poll(timeout, r.dispatchReady); err != nil {
		return false, err
	}
	r.fireTimers(time.Now())
	return true, nil
}

// CloseOnExit registers c to be closed when Run returns. Closers run in
// reverse registration order.
func (r *Reactor) CloseOnExit(c io.Closer) {
	r.closers = append(r.closers, c)
}

// CloseFDOnExit is CloseOnExit for a raw descriptor.
func (r *Reactor) CloseFDOnExit(fd int) {
	r.CloseOnExit(fdCloser(fd))
}

type fdCloser int

func (f fdCloser) Close() error { return unix.Close(int(f)) }

func (r *Reactor) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			if l := r.logger(); l != nil {
				l.Warning().Err(err).Log("close on loop exit failed")
			} else {
				log.Printf("reactor: close on loop exit failed: %v", err)
			}
		}
	}
	r.closers = nil
}

// PendingTimers reports the number of scheduled, unexpired timers.
func (r *Reactor) PendingTimers() int { return len(r.timers) }

// PendingInterests reports the number of outstanding fd interests.
func (r *Reactor) PendingInterests() int { return r.interests }
