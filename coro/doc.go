// Package coro implements resumable computations ("coroutines") driven by
// explicit suspension objects.
//
// Unlike most coroutine systems, coro does not provide a central scheduler.
// Each [Coroutine] is an independent state machine that runs as far as it can
// until an external condition (a [WaitCondition]) is required before it can
// continue. The reactor package acts as a scheduler for conditions backed by
// I/O readiness and timers, but it is not tied into the workings of the
// Coroutine type.
//
// A coroutine body is written in continuation-passing style as a chain of
// [Step] functions. Each step receives the result of the condition it last
// waited on and hands back a [Yield] describing what should happen next:
// wait on a condition ([Wait]), run a nested coroutine to completion
// ([Call]), tail-call into a replacement step ([Jump]), finish with a value
// ([Return]), or finish with an error ([Fail]).
//
// Execution is strictly single-threaded and cooperative: exactly one body
// runs at a time, and it runs until it reaches a suspension point or
// finishes. The only OS-level parallelism in the runtime lives in the
// threadpool package, which converts blocking calls into eventual
// resumptions on the single-threaded side.
package coro
