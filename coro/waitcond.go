package coro

import (
	"errors"
	"fmt"
)

// Value is the result payload carried through suspensions and coroutine
// completion. It can be any type.
type Value = any

// Standard errors.
var (
	// ErrKilled is the synthetic failure recorded when a suspended coroutine
	// is terminated with [Coroutine.Kill].
	ErrKilled = errors.New("coro: coroutine killed")
)

// PanicError wraps a recovered panic value so it can flow through the
// result channel like any other error.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("coro: recovered panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling use with [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WaitCondition represents a condition for which a coroutine may need to
// suspend execution.
//
// A WaitCondition is bound to at most one coroutine at a time. Binding an
// already-bound condition is a programming error and panics.
type WaitCondition interface {
	// Bind attaches owner to the condition.
	//
	// If the condition is already satisfied, the result is returned
	// immediately with ready == true, and the condition is NOT considered
	// bound; the owner must not call Unbind. Otherwise ready is false, the
	// condition is now bound, and exactly one later call to owner's Resume
	// will occur, after which the condition reverts to unbound.
	//
	// Bind should not generally be called except by the coroutine resume
	// loop.
	Bind(owner *Coroutine) (value Value, err error, ready bool)

	// Unbind removes the binding that was established with Bind(owner).
	// It panics if the condition is not currently bound to owner.
	//
	// Unbind should not generally be called except by [Coroutine.Kill].
	Unbind(owner *Coroutine)
}

// Immediate is a "false" WaitCondition whose result is available at bind
// time; binding it never suspends the owner. It may carry an error instead
// of a value, in which case binding raises that error in the owner.
//
// Immediate exists so that functions returning a WaitCondition can report
// an already-known result (or failure) through the same channel as a real
// suspension, and so that a body can make forward progress through a chain
// of already-ready conditions without ever leaving the resume loop.
type Immediate struct {
	value Value
	err   error
}

// Ready returns an Immediate carrying v.
func Ready(v Value) *Immediate { return &Immediate{value: v} }

// Raise returns an Immediate carrying err; binding it fails the waiter.
func Raise(err error) *Immediate { return &Immediate{err: err} }

func (c *Immediate) Bind(*Coroutine) (Value, error, bool) {
	return c.value, c.err, true
}

func (c *Immediate) Unbind(*Coroutine) {
	panic("coro: Immediate is never bound")
}

func (c *Immediate) String() string {
	if c.err != nil {
		return fmt.Sprintf("Immediate(err: %v)", c.err)
	}
	return fmt.Sprintf("Immediate(%v)", c.value)
}

// Signal is a WaitCondition fired by an external party. Binding records the
// owner; invoking the signal with a value (or an error) resumes the owner
// exactly once and clears the binding.
//
// Invoking an unbound Signal via [Signal.Invoke] or [Signal.Throw] is a
// misuse error and panics. Loop-owned dispatch paths (timers, readiness,
// thread pool results) use [Signal.Fire] instead, which reports rather than
// panics, so that a waiter killed between arming and firing degrades to a
// logged no-op.
type Signal struct {
	desc  string
	owner *Coroutine
}

// NewSignal returns an unbound Signal. The description is included in
// String() for diagnostics and is not otherwise used.
func NewSignal(desc string) *Signal {
	return &Signal{desc: desc}
}

func (s *Signal) Bind(owner *Coroutine) (Value, error, bool) {
	if s.owner != nil {
		panic(fmt.Sprintf("coro: %s is already bound", s))
	}
	s.owner = owner
	return nil, nil, false
}

func (s *Signal) Unbind(owner *Coroutine) {
	if s.owner != owner {
		panic(fmt.Sprintf("coro: %s is not bound to %v", s, owner))
	}
	s.owner = nil
}

// Bound reports whether a coroutine is currently waiting on the signal.
func (s *Signal) Bound() bool { return s.owner != nil }

// Invoke causes v to be the result of the wait. Panics if unbound.
func (s *Signal) Invoke(v Value) {
	if !s.Fire(v, nil) {
		panic(fmt.Sprintf("coro: Invoke on unbound %s", s))
	}
}

// Throw raises err in the bound coroutine. Panics if unbound.
func (s *Signal) Throw(err error) {
	if !s.Fire(nil, err) {
		panic(fmt.Sprintf("coro: Throw on unbound %s", s))
	}
}

// Fire resumes the bound coroutine with (v, err) and clears the binding,
// reporting whether anything was delivered. Firing an unbound signal is a
// no-op returning false; callers on loop-owned dispatch paths should log it.
func (s *Signal) Fire(v Value, err error) bool {
	owner := s.owner
	if owner == nil {
		return false
	}
	s.owner = nil
	owner.Resume(v, err)
	return true
}

func (s *Signal) String() string {
	if s.desc != "" {
		return fmt.Sprintf("Signal(%s)", s.desc)
	}
	return "Signal"
}
