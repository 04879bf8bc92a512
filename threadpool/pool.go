package threadpool

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/j4cbo/chiral/coro"
	"github.com/j4cbo/chiral/reactor"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// ErrClosed is delivered to waiters whose jobs were discarded by Close, and
// returned (as an immediately failed wait) by RunInThread after Close.
var ErrClosed = errors.New("threadpool: closed")

// workItem is one submitted job.
type workItem struct {
	fn   func() (coro.Value, error)
	sink *coro.Signal
}

// resultItem is one finished job, not yet delivered to its waiter.
type resultItem struct {
	value coro.Value
	err   error
	sink  *coro.Signal
}

// Pool runs blocking functions on worker goroutines and resumes the
// submitting coroutines with the results. New, RunInThread, Stats, and
// Close must be called from the loop thread; only the worker goroutines
// touch the pool concurrently, and only under the queue mutex.
type Pool struct {
	r   *reactor.Reactor
	log *logiface.Logger[logiface.Event]

	mu         sync.Mutex
	cond       *sync.Cond
	input      []workItem
	output     []resultItem
	active     int
	workers    int
	maxWorkers int
	closed     bool

	completed atomic.Uint64

	// Worker side writes one byte per result; watcher side reads.
	readFd  int
	writeFd int

	// Loop-thread state.
	watcher *coro.Coroutine
	parked  *coro.Signal
}

// New constructs a Pool delivering results through r.
func New(r *reactor.Reactor, opts ...Option) (*Pool, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	p := &Pool{
		r:          r,
		log:        cfg.logger,
		maxWorkers: cfg.maxWorkers,
		readFd:     fds[0],
		writeFd:    fds[1],
	}
	p.cond = sync.NewCond(&p.mu)
	p.watcher = coro.New("threadpool watcher", p.watchStep)
	p.watcher.AddCompletionCallback(coro.SwallowKill)
	return p, nil
}

// logger returns the effective logger, which may be nil.
func (p *Pool) logger() *logiface.Logger[logiface.Event] {
	if p.log != nil {
		return p.log
	}
	return coro.Logger()
}

// RunInThread queues fn for execution on a worker goroutine and returns the
// wait condition that resumes the caller with fn's result. A panic in fn is
// delivered as a coro.PanicError. name describes the job in diagnostics.
func (p *Pool) RunInThread(name string, fn func() (coro.Value, error)) coro.WaitCondition {
	sink := coro.NewSignal("thread result: " + name)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return coro.Raise(ErrClosed)
	}
	p.input = append(p.input, workItem{fn: fn, sink: sink})
	if p.workers == 0 || (p.active == p.workers && p.workers < p.maxWorkers) {
		p.workers++
		go p.worker()
	}
	p.cond.Signal()
	p.mu.Unlock()

	// The watcher must be waiting before the caller suspends, or the
	// result byte would have no reader.
	switch {
	case p.watcher.State() == coro.StateStopped:
		p.watcher.Start()
	case p.parked != nil:
		s := p.parked
		p.parked = nil
		s.Invoke(nil)
	}

	return sink
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers        int    // worker goroutines alive
	Active         int    // jobs currently executing
	Queued         int    // jobs waiting for a worker
	PendingResults int    // finished jobs not yet delivered
	Completed      uint64 // results delivered since New
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:        p.workers,
		Active:         p.active,
		Queued:         len(p.input),
		PendingResults: len(p.output),
		Completed:      p.completed.Load(),
	}
}

// Close shuts the pool down. Queued jobs and undelivered results are
// discarded, with their waiters failed with ErrClosed. Jobs already
// executing run to completion on their goroutines but their results are
// dropped.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := make([]*coro.Signal, 0, len(p.input)+len(p.output))
	for _, item := range p.input {
		dropped = append(dropped, item.sink)
	}
	for _, item := range p.output {
		dropped = append(dropped, item.sink)
	}
	p.input = nil
	p.output = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if p.watcher.State() == coro.StateSuspended {
		p.watcher.Kill()
	}
	p.parked = nil

	for _, sink := range dropped {
		if !sink.Fire(nil, ErrClosed) {
			p.reportDropped(sink)
		}
	}

	unix.Close(p.writeFd)
	return unix.Close(p.readFd)
}

// worker is the goroutine loop. It pops a job and marks itself active in
// one critical section, so a queued job is never observably unowned.
func (p *Pool) worker() {
	p.mu.Lock()
	for {
		for len(p.input) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.workers--
			p.mu.Unlock()
			return
		}
		item := p.input[0]
		p.input = p.input[1:]
		p.active++
		p.mu.Unlock()

		value, err := runJob(item.fn)

		p.mu.Lock()
		p.active--
		if p.closed {
			continue
		}
		p.output = append(p.output, resultItem{value: value, err: err, sink: item.sink})
		// One byte per result, written under the lock so the byte stream
		// and the output queue stay in step.
		var one [1]byte
		if _, werr := unix.Write(p.writeFd, one[:]); werr != nil {
			if l := p.logger(); l != nil {
				l.Err().Err(werr).Log("thread pool notify write failed")
			} else {
				log.Printf("threadpool: notify write failed: %v", werr)
			}
		}
	}
}

func runJob(fn func() (coro.Value, error)) (value coro.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, coro.PanicError{Value: r}
		}
	}()
	return fn()
}

// watchStep is the watcher coroutine body. Each resumption drains whatever
// result bytes are pending, delivers the matching results, then either
// parks (pool idle) or re-waits on the socketpair.
func (p *Pool) watchStep(_ coro.Value, _ error) coro.Yield {
	for {
		var buf [128]byte
		n, err := unix.Read(p.readFd, buf[:])
		if n > 0 {
			p.deliver(n)
		}
		if err != nil {
			if err != unix.EAGAIN {
				if l := p.logger(); l != nil {
					l.Err().Err(err).Log("thread pool notify read failed")
				} else {
					log.Printf("threadpool: notify read failed: %v", err)
				}
				return coro.Fail(err)
			}
			break
		}
		if n == 0 {
			// Write end closed.
			return coro.Return(nil)
		}
		if n < len(buf) {
			break
		}
	}

	p.mu.Lock()
	idle := len(p.input) == 0 && p.active == 0 && len(p.output) == 0
	p.mu.Unlock()

	if idle {
		p.parked = coro.NewSignal("thread pool idle")
		return coro.Wait(p.parked, p.watchStep)
	}
	return coro.Wait(p.r.WaitForReadable(p.readFd), p.watchStep)
}

// deliver pops up to n results and resumes their waiters.
func (p *Pool) deliver(n int) {
	p.mu.Lock()
	if n > len(p.output) {
		n = len(p.output)
	}
	batch := make([]resultItem, n)
	copy(batch, p.output[:n])
	p.output = p.output[n:]
	p.mu.Unlock()

	// Fire outside the lock: a resumed coroutine may immediately submit
	// more work.
	for i := range batch {
		item := &batch[i]
		if sink := item.sink; !sink.Fire(item.value, item.err) {
			p.reportDropped(sink)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) reportDropped(sink *coro.Signal) {
	if l := p.logger(); l != nil {
		l.Warning().Str("signal", sink.String()).Log("thread result discarded, waiter gone")
	} else {
		log.Printf("threadpool: thread result discarded, waiter gone: %s", sink)
	}
}
