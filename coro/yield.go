package coro

import "errors"

// Step is one segment of a coroutine body. It receives the value or error
// produced by the condition the body last waited on (nil, nil on the first
// step) and hands back a Yield describing what should happen next.
type Step func(value Value, err error) Yield

// Yield is what a body step hands back to the driving resume loop. The set
// of variants is closed: the loop's dispatch is a match over [Wait], [Call],
// [Jump], [Return], and [Fail].
type Yield interface{ yield() }

type yieldWait struct {
	cond WaitCondition
	next Step
}

type yieldCall struct {
	name string
	body Step
	next Step
}

type yieldJump struct {
	next Step
}

type yieldReturn struct {
	value Value
}

type yieldFail struct {
	err error
}

func (yieldWait) yield()   {}
func (yieldCall) yield()   {}
func (yieldJump) yield()   {}
func (yieldReturn) yield() {}
func (yieldFail) yield()   {}

// Wait suspends the body on cond; next receives the condition's result.
// If cond is already ready, next runs without the coroutine ever leaving
// the Running state.
func Wait(cond WaitCondition, next Step) Yield {
	return yieldWait{cond: cond, next: next}
}

// Call wraps body in a new coroutine, starts it, and waits for it to
// complete; next receives its result. It is the implicit form of waiting on
// another coroutine: the nested body needs no handle of its own at the call
// site.
func Call(name string, body Step, next Step) Yield {
	return yieldCall{name: name, body: body, next: next}
}

// Jump replaces the remainder of the body with next, continuing in the same
// coroutine. Where Return is analogous to a return statement, Jump is an
// optimized tail-call: a connection handler can process one request and
// Jump back into itself without consuming stack or creating a new handle.
func Jump(next Step) Yield {
	return yieldJump{next: next}
}

// Return completes the coroutine with v.
func Return(v Value) Yield {
	return yieldReturn{value: v}
}

// Fail terminates the coroutine with err.
func Fail(err error) Yield {
	return yieldFail{err: err}
}

var errNilYield = errors.New("coro: body step returned nil Yield")
