// Package reactor provides the event loop that drives coro coroutines: a
// single-threaded multiplexer over timer deadlines and file descriptor
// readiness.
//
// A coroutine waits for I/O by yielding on the condition returned from
// WaitForReadable or WaitForWritable, and sleeps by yielding on the signal
// returned from Schedule. Run polls the OS, resumes whichever coroutines
// became runnable, and returns once no timers or interests remain.
//
// Readiness is level-triggered from the caller's point of view and
// one-shot: a delivered event retires the interest, and the coroutine
// re-waits if it needs more. The polling backend is chosen at construction
// time via WithBackend; see Backend for the available implementations.
package reactor
