// Package threadpool bridges blocking work onto coro coroutines. Jobs
// submitted via Pool.RunInThread execute on ordinary goroutines, and their
// results are ferried back to the loop thread through a socketpair: each
// finished job writes one byte, and a watcher coroutine waiting on the read
// end (via the reactor) collects the byte, pops the matching result, and
// resumes the submitting coroutine.
//
// The watcher parks itself on a plain signal whenever the pool goes idle, so
// an idle pool keeps no descriptor interest outstanding and does not hold
// the reactor's Run loop open.
package threadpool
