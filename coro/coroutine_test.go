package coro

import (
	"errors"
	"testing"
)

var errTest = errors.New("test failure")

// mustPanic runs fn and fails the test if it does not panic.
func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}

func TestImmediateReturn(t *testing.T) {
	c := Go("const", func(Value, error) Yield {
		return Return(42)
	})
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", c.State())
	}
	v, err, ok := c.Result()
	if !ok || err != nil || v != 42 {
		t.Fatalf("Result() = %v, %v, %v; want 42, nil, true", v, err, ok)
	}
}

func TestNilResultIsUnambiguous(t *testing.T) {
	c := Go("nil", func(Value, error) Yield {
		return Return(nil)
	})
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", c.State())
	}
	v, err, ok := c.Result()
	if !ok || v != nil || err != nil {
		t.Fatalf("Result() = %v, %v, %v; want nil, nil, true", v, err, ok)
	}
}

func TestReadyConditionsRunWithoutSuspending(t *testing.T) {
	var order []int
	c := Go("chain", func(Value, error) Yield {
		order = append(order, 1)
		return Wait(Ready("a"), func(v Value, err error) Yield {
			order = append(order, 2)
			if v != "a" || err != nil {
				t.Errorf("step 2 got %v, %v", v, err)
			}
			return Wait(Ready("b"), func(v Value, err error) Yield {
				order = append(order, 3)
				return Return(v)
			})
		})
	})
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", c.State())
	}
	if len(order) != 3 {
		t.Fatalf("ran %d steps, want 3", len(order))
	}
	if v, _, _ := c.Result(); v != "b" {
		t.Fatalf("result = %v, want b", v)
	}
}

func TestRaiseDeliversError(t *testing.T) {
	c := New("raise", func(Value, error) Yield {
		return Wait(Raise(errTest), func(v Value, err error) Yield {
			if err != errTest {
				t.Errorf("got err %v, want %v", err, errTest)
			}
			return Return("recovered")
		})
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	if v, _, _ := c.Result(); v != "recovered" {
		t.Fatalf("result = %v, want recovered", v)
	}
}

func TestSignalSuspendAndResume(t *testing.T) {
	s := NewSignal("test")
	c := Go("waiter", func(Value, error) Yield {
		return Wait(s, func(v Value, err error) Yield {
			return Return(v)
		})
	})
	if c.State() != StateSuspended {
		t.Fatalf("state = %v, want suspended", c.State())
	}
	if c.WaitingOn() != s {
		t.Fatalf("WaitingOn() = %v, want %v", c.WaitingOn(), s)
	}
	if !s.Bound() {
		t.Fatal("signal not bound after suspend")
	}

	s.Invoke("hello")
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", c.State())
	}
	if v, _, _ := c.Result(); v != "hello" {
		t.Fatalf("result = %v, want hello", v)
	}
	if s.Bound() {
		t.Fatal("signal still bound after fire")
	}
}

func TestSignalThrow(t *testing.T) {
	s := NewSignal("test")
	c := New("waiter", func(Value, error) Yield {
		return Wait(s, func(v Value, err error) Yield {
			return Fail(err)
		})
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	s.Throw(errTest)
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	if _, err, _ := c.Result(); err != errTest {
		t.Fatalf("err = %v, want %v", err, errTest)
	}
}

func TestSignalMisuse(t *testing.T) {
	s := NewSignal("test")
	mustPanic(t, "Invoke on unbound signal", func() { s.Invoke(1) })
	mustPanic(t, "Throw on unbound signal", func() { s.Throw(errTest) })
	if s.Fire(1, nil) {
		t.Fatal("Fire on unbound signal reported delivery")
	}

	Go("waiter", func(Value, error) Yield {
		return Wait(s, func(Value, error) Yield { return Return(nil) })
	})
	mustPanic(t, "double bind", func() {
		Go("second", func(Value, error) Yield {
			return Wait(s, func(Value, error) Yield { return Return(nil) })
		})
	})
	s.Invoke(nil) // clean up the first waiter
}

func TestAwaitCoroutine(t *testing.T) {
	done := NewSignal("producer done")
	producer := New("producer", func(Value, error) Yield {
		return Wait(done, func(v Value, err error) Yield {
			return Return(v)
		})
	})

	consumer := Go("consumer", func(Value, error) Yield {
		return Wait(producer, func(v Value, err error) Yield {
			return Return(v)
		})
	})

	// Binding an unstarted coroutine starts it.
	if producer.State() != StateSuspended {
		t.Fatalf("producer state = %v, want suspended", producer.State())
	}
	if consumer.State() != StateSuspended {
		t.Fatalf("consumer state = %v, want suspended", consumer.State())
	}

	done.Invoke(42)
	if v, _, _ := consumer.Result(); v != 42 {
		t.Fatalf("consumer result = %v, want 42", v)
	}
}

func TestAwaitCompletedCoroutine(t *testing.T) {
	producer := Go("producer", func(Value, error) Yield {
		return Return("early")
	})
	consumer := Go("consumer", func(Value, error) Yield {
		return Wait(producer, func(v Value, err error) Yield {
			return Return(v)
		})
	})
	if consumer.State() != StateCompleted {
		t.Fatalf("consumer state = %v, want completed", consumer.State())
	}
	if v, _, _ := consumer.Result(); v != "early" {
		t.Fatalf("consumer result = %v, want early", v)
	}
}

func TestAwaitFailurePropagates(t *testing.T) {
	var sink []capturedLog
	SetLogger(newCaptureLogger(&sink))
	defer SetLogger(nil)

	producer := New("producer", func(Value, error) Yield {
		return Fail(errTest)
	})
	consumer := New("consumer", func(Value, error) Yield {
		return Wait(producer, func(v Value, err error) Yield {
			return Fail(err)
		})
	})
	consumer.AddCompletionCallback(SwallowKill)
	consumer.Start()

	if _, err, _ := consumer.Result(); err != errTest {
		t.Fatalf("consumer err = %v, want %v", err, errTest)
	}
	// Both failures were observed, so neither is reported as an orphan.
	if len(sink) != 0 {
		t.Fatalf("got %d log events, want 0: %+v", len(sink), sink)
	}
}

func TestCallRunsNestedBody(t *testing.T) {
	c := Go("outer", func(Value, error) Yield {
		return Call("inner", func(Value, error) Yield {
			return Return(7)
		}, func(v Value, err error) Yield {
			return Return(v.(int) * 2)
		})
	})
	if v, _, _ := c.Result(); v != 14 {
		t.Fatalf("result = %v, want 14", v)
	}
}

func TestJumpLoopsWithoutGrowingStack(t *testing.T) {
	const n = 200000
	count := 0
	var loop Step
	loop = func(Value, error) Yield {
		if count == n {
			return Return(count)
		}
		count++
		return Jump(loop)
	}
	c := Go("loop", loop)
	if v, _, _ := c.Result(); v != n {
		t.Fatalf("result = %v, want %v", v, n)
	}
}

func TestBodyPanicBecomesFailure(t *testing.T) {
	c := New("panicky", func(Value, error) Yield {
		panic("kaboom")
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	_, err, _ := c.Result()
	var pe PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("err = %v, want PanicError(kaboom)", err)
	}
}

func TestPanicErrorUnwrap(t *testing.T) {
	c := New("panicky", func(Value, error) Yield {
		panic(errTest)
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	_, err, _ := c.Result()
	if !errors.Is(err, errTest) {
		t.Fatalf("errors.Is(%v, errTest) = false", err)
	}
}

func TestNilYieldFailsCoroutine(t *testing.T) {
	c := New("nil yield", func(Value, error) Yield {
		return nil
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	if _, err, _ := c.Result(); !errors.Is(err, errNilYield) {
		t.Fatalf("err = %v, want %v", err, errNilYield)
	}
}

func TestCompletionCallbackRewrite(t *testing.T) {
	c := New("rewritten", func(Value, error) Yield {
		return Fail(errTest)
	})
	c.AddCompletionCallback(func(v Value, err error) (Value, error, bool) {
		if err == errTest {
			return "rescued", nil, true
		}
		return nil, nil, false
	})
	c.Start()
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", c.State())
	}
	if v, err, _ := c.Result(); v != "rescued" || err != nil {
		t.Fatalf("Result() = %v, %v; want rescued, nil", v, err)
	}
}

func TestCallbacksRunInRegistrationOrder(t *testing.T) {
	var order []int
	c := New("ordered", func(Value, error) Yield {
		return Return(nil)
	})
	c.AddCompletionCallback(func(Value, error) (Value, error, bool) {
		order = append(order, 1)
		return nil, nil, false
	})
	c.AddCompletionCallback(func(Value, error) (Value, error, bool) {
		order = append(order, 2)
		return nil, nil, false
	})
	c.Start()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("callback order = %v, want [1 2]", order)
	}
}

func TestAwaiterSeesRewrittenResult(t *testing.T) {
	s := NewSignal("trigger")
	producer := New("producer", func(Value, error) Yield {
		return Wait(s, func(v Value, err error) Yield {
			return Fail(errTest)
		})
	})
	producer.AddCompletionCallback(func(v Value, err error) (Value, error, bool) {
		return "rescued", nil, true
	})

	consumer := Go("consumer", func(Value, error) Yield {
		return Wait(producer, func(v Value, err error) Yield {
			return Return(v)
		})
	})

	s.Invoke(nil)
	if v, err, _ := consumer.Result(); v != "rescued" || err != nil {
		t.Fatalf("consumer Result() = %v, %v; want rescued, nil", v, err)
	}
}

func TestCallbackPanicReplacesResult(t *testing.T) {
	c := New("callback panic", func(Value, error) Yield {
		return Return("fine")
	})
	c.AddCompletionCallback(func(Value, error) (Value, error, bool) {
		panic("callback kaboom")
	})
	c.Start()
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	_, err, _ := c.Result()
	var pe PanicError
	if !errors.As(err, &pe) || pe.Value != "callback kaboom" {
		t.Fatalf("err = %v, want PanicError(callback kaboom)", err)
	}
}

func TestRemoveCompletionCallback(t *testing.T) {
	ran := false
	c := New("removed", func(Value, error) Yield {
		return Return(nil)
	})
	id := c.AddCompletionCallback(func(Value, error) (Value, error, bool) {
		ran = true
		return nil, nil, false
	})
	c.RemoveCompletionCallback(id)
	mustPanic(t, "removing an absent callback", func() {
		c.RemoveCompletionCallback(id)
	})
	c.Start()
	if ran {
		t.Fatal("removed callback still ran")
	}
	mustPanic(t, "AddCompletionCallback on a completed coroutine", func() {
		c.AddCompletionCallback(SwallowKill)
	})
}

func TestKillSuspended(t *testing.T) {
	s := NewSignal("never")
	c := New("victim", func(Value, error) Yield {
		return Wait(s, func(Value, error) Yield {
			return Return(nil)
		})
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()

	c.Kill()
	if c.State() != StateCompleted {
		t.Fatalf("state = %v, want completed (kill swallowed)", c.State())
	}
	if s.Bound() {
		t.Fatal("signal still bound after kill")
	}
	mustPanic(t, "Invoke after kill", func() { s.Invoke(nil) })
}

func TestKillRecordsErrKilled(t *testing.T) {
	var sink []capturedLog
	SetLogger(newCaptureLogger(&sink))
	defer SetLogger(nil)

	s := NewSignal("never")
	c := Go("victim", func(Value, error) Yield {
		return Wait(s, func(Value, error) Yield {
			return Return(nil)
		})
	})
	c.Kill()
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	if _, err, _ := c.Result(); !errors.Is(err, ErrKilled) {
		t.Fatalf("err = %v, want ErrKilled", err)
	}
	// Nothing was watching, so the kill is an orphan failure.
	if len(sink) != 1 {
		t.Fatalf("got %d log events, want 1", len(sink))
	}
}

func TestKillTerminalIsNoOp(t *testing.T) {
	c := Go("done", func(Value, error) Yield {
		return Return(1)
	})
	c.Kill()
	if v, _, _ := c.Result(); v != 1 {
		t.Fatalf("result = %v, want 1", v)
	}

	unstarted := New("unstarted", func(Value, error) Yield {
		return Return(nil)
	})
	unstarted.Kill()
	if unstarted.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", unstarted.State())
	}
}

func TestKillRunningFails(t *testing.T) {
	var c *Coroutine
	c = New("self kill", func(Value, error) Yield {
		c.Kill()
		return Return(nil)
	})
	c.AddCompletionCallback(SwallowKill)
	c.Start()
	// Kill on a running coroutine panics; the panic surfaces as the
	// coroutine's own failure.
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	_, err, _ := c.Result()
	var pe PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PanicError", err)
	}
}

func TestLifecycleMisuse(t *testing.T) {
	c := Go("done", func(Value, error) Yield {
		return Return(nil)
	})
	mustPanic(t, "Start on completed coroutine", func() { c.Start() })
	mustPanic(t, "Resume on completed coroutine", func() { c.Resume(nil, nil) })
	mustPanic(t, "New with nil body", func() { New("bad", nil) })
}

func TestLiveRegistry(t *testing.T) {
	base := len(Live())

	s := NewSignal("hold")
	c := Go("tracked", func(Value, error) Yield {
		return Wait(s, func(Value, error) Yield {
			return Return(nil)
		})
	})

	live := Live()
	if len(live) != base+1 {
		t.Fatalf("len(Live()) = %d, want %d", len(live), base+1)
	}
	got, ok := Find(c.ID())
	if !ok || got != c {
		t.Fatalf("Find(%d) = %v, %v", c.ID(), got, ok)
	}

	unstarted := New("invisible", func(Value, error) Yield {
		return Return(nil)
	})
	if _, ok := Find(unstarted.ID()); ok {
		t.Fatal("unstarted coroutine visible in registry")
	}

	s.Invoke(nil)
	if _, ok := Find(c.ID()); ok {
		t.Fatal("finished coroutine still in registry")
	}
}

func TestStringIncludesState(t *testing.T) {
	c := New("stringer", func(Value, error) Yield {
		return Return(nil)
	})
	if got := c.String(); got == "" {
		t.Fatal("empty String()")
	}
	if c.State().String() != "stopped" {
		t.Fatalf("State().String() = %q, want stopped", c.State().String())
	}
}
