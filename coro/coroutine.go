package coro

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a [Coroutine].
type State uint32

const (
	// StateStopped indicates the coroutine is created and ready to run, but
	// has not been started.
	StateStopped State = iota
	// StateRunning indicates the coroutine is currently executing body code.
	StateRunning
	// StateSuspended indicates the coroutine is waiting on a WaitCondition,
	// available via [Coroutine.WaitingOn].
	StateSuspended
	// StateCompleted indicates the coroutine finished successfully; its
	// result carries a value and a nil error.
	StateCompleted
	// StateFailed indicates the coroutine terminated with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// CompletionCallback observes (and may rewrite) a coroutine's final result.
// It receives the value and error the coroutine finished with; returning
// rewrite == true replaces the stored result with the returned pair, to
// swallow a specific error kind, for example, or pass the value through a
// filter.
type CompletionCallback func(value Value, err error) (Value, error, bool)

// SwallowKill is a CompletionCallback that suppresses [ErrKilled].
//
// A coroutine killed with [Coroutine.Kill] fails with ErrKilled; if nothing
// observes that failure it is reported as an orphan. Registering SwallowKill
// converts the kill into a clean completion instead.
func SwallowKill(_ Value, err error) (Value, error, bool) {
	if errors.Is(err, ErrKilled) {
		return nil, nil, true
	}
	return nil, nil, false
}

type completionEntry struct {
	id uint64
	// awaiter is set when the entry backs another coroutine's wait on this
	// one; Unbind locates the entry by it.
	awaiter *Coroutine
	fn      CompletionCallback
}

var (
	coroutineIDCounter atomic.Uint64
	callbackIDCounter  atomic.Uint64
)

// Coroutine is a resumable computation: a suspendable unit of sequential
// logic driven forward by repeated [Coroutine.Resume] calls, each time its
// current wait condition becomes ready, until it completes or fails.
//
// A Coroutine is itself a [WaitCondition]: other coroutines can wait on its
// completion. All methods must be called from the loop thread; Coroutine
// performs no locking of its own.
type Coroutine struct {
	id   uint64
	name string

	state    State
	step     Step
	waitCond WaitCondition

	value Value
	err   error

	callbacks []completionEntry

	// watched is set once anything observes the result (an awaiting
	// coroutine or a registered completion callback); unwatched failures
	// are reported as orphans.
	watched bool
}

// New creates a coroutine around body without starting it. The name is used
// in diagnostics only.
func New(name string, body Step) *Coroutine {
	if body == nil {
		panic("coro: nil body")
	}
	return &Coroutine{
		id:    coroutineIDCounter.Add(1),
		name:  name,
		state: StateStopped,
		step:  body,
	}
}

// Go creates and immediately starts a coroutine around body.
func Go(name string, body Step) *Coroutine {
	c := New(name, body)
	c.Start()
	return c
}

// ID returns the coroutine's process-unique identity.
func (c *Coroutine) ID() uint64 { return c.id }

// Name returns the diagnostic name given at creation.
func (c *Coroutine) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Coroutine) State() State { return c.state }

// WaitingOn returns the condition the coroutine is suspended on, or nil.
func (c *Coroutine) WaitingOn() WaitCondition { return c.waitCond }

// Result returns the final (value, error) pair. ok is false until the
// coroutine reaches StateCompleted or StateFailed.
func (c *Coroutine) Result() (value Value, err error, ok bool) {
	if c.state != StateCompleted && c.state != StateFailed {
		return nil, nil, false
	}
	return c.value, c.err, true
}

// Start begins running the coroutine. It panics unless the coroutine is in
// StateStopped. Bodies that never suspend complete within this call.
func (c *Coroutine) Start() {
	if c.state != StateStopped {
		panic(fmt.Sprintf("coro: Start on %s coroutine %v", c.state, c))
	}
	c.state = StateSuspended
	registerLive(c)
	c.Resume(nil, nil)
}

// Resume drives the coroutine forward with the result of the condition it
// was suspended on. It may only be called when the coroutine is in
// StateSuspended, and is not normally called by consumers: wait conditions
// call it when they become ready.
func (c *Coroutine) Resume(value Value, err error) {
	if c.state != StateSuspended {
		panic(fmt.Sprintf("coro: Resume on %s coroutine %v", c.state, c))
	}

	c.state = StateRunning
	c.waitCond = nil
	step := c.step
	c.step = nil

	// The loop matters for more than tidiness: a body that only ever waits
	// on already-ready conditions must make forward progress here without
	// growing the call stack.
	for {
		y := runStep(step, value, err)

		var cond WaitCondition
		var next Step

		switch y := y.(type) {
		case yieldReturn:
			c.terminate(y.value, nil)
			return
		case yieldFail:
			if y.err == nil {
				c.terminate(nil, errNilYield)
				return
			}
			c.terminate(nil, y.err)
			return
		case yieldJump:
			if y.next == nil {
				c.terminate(nil, errNilYield)
				return
			}
			step, value, err = y.next, nil, nil
			continue
		case yieldCall:
			cond, next = New(y.name, y.body), y.next
		case yieldWait:
			cond, next = y.cond, y.next
		default:
			c.terminate(nil, errNilYield)
			return
		}

		if cond == nil || next == nil {
			c.terminate(nil, errNilYield)
			return
		}

		bv, berr, ready := cond.Bind(c)
		if ready {
			// No suspension occurred; feed the result straight back in.
			step, value, err = next, bv, berr
			continue
		}

		c.step = next
		c.waitCond = cond
		c.state = StateSuspended
		return
	}
}

// runStep invokes one body step, converting a panic into a failure yield so
// it flows through the result channel like any other error.
func runStep(step Step, value Value, err error) (y Yield) {
	defer func() {
		if r := recover(); r != nil {
			y = yieldFail{err: PanicError{Value: r}}
		}
	}()
	return step(value, err)
}

// terminate records the result, runs completion callbacks in registration
// order, and then releases the body reference. Callbacks run first so they
// can observe the coroutine while it is still fully formed.
func (c *Coroutine) terminate(value Value, err error) {
	c.value, c.err = value, err
	c.setTerminalState()
	deregisterLive(c)

	callbacks := c.callbacks
	c.callbacks = nil

	for _, entry := range callbacks {
		c.runCallback(entry)
		c.setTerminalState()
	}

	// Release the body reference so resources captured by pending steps are
	// not retained past completion.
	c.step = nil

	if c.err != nil && !c.watched {
		reportOrphan(c)
	}
}

// runCallback invokes one completion callback, applying its rewrite if any.
// A callback that panics replaces the coroutine's result, as if the
// coroutine had failed with that error in the first place.
func (c *Coroutine) runCallback(entry completionEntry) {
	defer func() {
		if r := recover(); r != nil {
			c.value, c.err = nil, PanicError{Value: r}
		}
	}()
	if v, err, rewrite := entry.fn(c.value, c.err); rewrite {
		c.value, c.err = v, err
	}
}

func (c *Coroutine) setTerminalState() {
	if c.err != nil {
		c.state = StateFailed
	} else {
		c.state = StateCompleted
	}
}

// AddCompletionCallback registers cb to run when the coroutine terminates,
// and returns a handle for [Coroutine.RemoveCompletionCallback]. It panics
// if the coroutine has already completed or failed. Registering a callback
// marks the coroutine as watched, suppressing orphan-failure reporting.
func (c *Coroutine) AddCompletionCallback(cb CompletionCallback) uint64 {
	if c.state == StateCompleted || c.state == StateFailed {
		panic(fmt.Sprintf("coro: AddCompletionCallback on %s coroutine %v", c.state, c))
	}
	id := callbackIDCounter.Add(1)
	c.callbacks = append(c.callbacks, completionEntry{id: id, fn: cb})
	c.watched = true
	return id
}

// RemoveCompletionCallback removes a callback registered with
// AddCompletionCallback. It panics if no callback with that handle remains.
func (c *Coroutine) RemoveCompletionCallback(id uint64) {
	for i, entry := range c.callbacks {
		if entry.id == id {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("coro: RemoveCompletionCallback: no callback %d on %v", id, c))
}

// Bind makes the coroutine usable as a WaitCondition: the owner suspends
// until this coroutine completes. An unstarted target is started here; a
// target that has already finished reports its stored result immediately.
func (c *Coroutine) Bind(owner *Coroutine) (Value, error, bool) {
	c.watched = true
	if c.state == StateStopped {
		c.Start()
	}
	if c.state == StateCompleted || c.state == StateFailed {
		return c.value, c.err, true
	}
	c.callbacks = append(c.callbacks, completionEntry{
		id:      callbackIDCounter.Add(1),
		awaiter: owner,
		fn: func(v Value, err error) (Value, error, bool) {
			owner.Resume(v, err)
			return nil, nil, false
		},
	})
	return nil, nil, false
}

// Unbind removes the completion binding established by Bind(owner).
func (c *Coroutine) Unbind(owner *Coroutine) {
	for i, entry := range c.callbacks {
		if entry.awaiter == owner {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("coro: Unbind: %v is not waiting on %v", owner, c))
}

// Kill forcefully stops a suspended coroutine: the current wait condition is
// unbound and the coroutine fails with [ErrKilled], running completion
// callbacks as normal. Killing a Running coroutine is unsupported and
// panics; the caller must guarantee Kill is only issued on a suspended
// coroutine. In any other state Kill does nothing.
func (c *Coroutine) Kill() {
	switch c.state {
	case StateSuspended:
		c.waitCond.Unbind(c)
		c.waitCond = nil
		c.terminate(nil, ErrKilled)
	case StateRunning:
		panic(fmt.Sprintf("coro: Kill on running coroutine %v", c))
	}
}

func (c *Coroutine) String() string {
	s := fmt.Sprintf("<coroutine %d %q: %s", c.id, c.name, c.state)
	if c.state == StateCompleted || c.state == StateFailed {
		s += fmt.Sprintf(", result %v / %v", c.value, c.err)
	}
	if c.waitCond != nil {
		s += fmt.Sprintf(", waiting on %v", c.waitCond)
	}
	return s + ">"
}
