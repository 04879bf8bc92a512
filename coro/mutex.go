package coro

import "fmt"

// Mutex serializes coroutine access to a shared resource. One Mutex
// represents one controlled-access resource: a connection to a server, for
// example, may be protected by a Mutex to ensure that multiple transactions
// are not interleaved on it.
//
// Acquire returns a WaitCondition resolving to a *[Guard]; the caller
// should defer the guard's Release immediately so ownership transfers on
// every exit path:
//
//	return coro.Wait(conn.mu.Acquire(), func(v coro.Value, err error) coro.Yield {
//		if err != nil {
//			return coro.Fail(err)
//		}
//		defer v.(*coro.Guard).Release()
//		// ... use the resource ...
//	})
//
// Like everything in this package, Mutex is a cooperative, loop-thread-only
// structure; it performs no locking of its own.
type Mutex struct {
	desc  string
	owner *Guard
	queue []*Signal
}

// NewMutex returns an unowned Mutex. The description appears in the
// diagnostic names of queued waits.
func NewMutex(desc string) *Mutex {
	return &Mutex{desc: desc}
}

// Acquire attempts to claim the mutex. If it is unowned the returned
// condition is immediately ready with a fresh *Guard; otherwise the caller
// joins a strictly FIFO queue and suspends until ownership is handed over.
func (m *Mutex) Acquire() WaitCondition {
	if m.owner == nil {
		g := &Guard{m: m}
		m.owner = g
		return Ready(g)
	}
	s := NewSignal(fmt.Sprintf("mutex acquire: %s", m.desc))
	m.queue = append(m.queue, s)
	return s
}

// Locked reports whether the mutex currently has an owner.
func (m *Mutex) Locked() bool { return m.owner != nil }

func (m *Mutex) release(g *Guard) {
	if m.owner != g {
		panic(fmt.Sprintf("coro: release of mutex %q by non-owner", m.desc))
	}
	m.owner = nil
	for len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		ng := &Guard{m: m}
		m.owner = ng
		if s.Fire(ng, nil) {
			return
		}
		// The waiter was killed before the hand-off; skip to the next.
		m.owner = nil
	}
}

// Guard is an opaque release token produced by [Mutex.Acquire]. Release is
// idempotent, making `defer g.Release()` safe on every exit path.
type Guard struct {
	m        *Mutex
	released bool
}

// Release hands the mutex to the next queued waiter, or clears ownership if
// the queue is empty. Releasing twice is a no-op.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.m.release(g)
}
