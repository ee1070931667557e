package lifecycle

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// counter fails its first fails steps, then idles until stopped.
type counter struct {
	steps    atomic.Int32
	fails    int32
	panics   bool
	released atomic.Bool
}

func (c *counter) Step(stop <-chan struct{}) error {
	n := c.steps.Add(1)
	if n <= c.fails {
		if c.panics {
			panic("boom")
		}
		return errors.New("step failed")
	}
	select {
	case <-stop:
		return &BreakError{}
	case <-time.After(time.Millisecond):
		return nil
	}
}

func (c *counter) Release() { c.released.Store(true) }

func (*counter) String() string { return "COUNTER" }

func waitDone(t *testing.T, m *Manager[*counter]) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("main loop did not exit")
	}
}

func TestStartAndClose(t *testing.T) {
	t.Parallel()

	c := &counter{}
	m := New(c, StopOnError, nil)
	require.NoError(t, m.Start(func(*counter) error { return nil }))
	require.ErrorIs(t, m.Start(func(*counter) error { return nil }), ErrStartedAlready)

	m.Close()
	waitDone(t, m)
	require.True(t, c.released.Load())
	m.Close()
}

func TestStartError(t *testing.T) {
	t.Parallel()

	var seen []error
	c := &counter{}
	m := New(c, StopOnError, func(err error) { seen = append(seen, err) })
	require.Error(t, m.Start(func(*counter) error { return errors.New("init") }))
	waitDone(t, m)
	require.Len(t, seen, 1)
	require.Zero(t, c.steps.Load())
}

func TestStartAfterClose(t *testing.T) {
	t.Parallel()

	c := &counter{}
	m := New(c, StopOnError, nil)
	m.Close()
	require.True(t, c.released.Load())
	require.ErrorIs(t, m.Start(func(*counter) error { return nil }), ErrStartedAfterClose)
}

func TestStopOnError(t *testing.T) {
	t.Parallel()

	c := &counter{fails: 1}
	m := New(c, StopOnError, nil)
	require.NoError(t, m.Start(func(*counter) error { return nil }))
	waitDone(t, m)
	require.Equal(t, int32(1), c.steps.Load())
	m.Close()
}

func TestContinueOnError(t *testing.T) {
	t.Parallel()

	errs := make(chan error, 8)
	c := &counter{fails: 3, panics: true}
	m := New(c, ContinueOnError, func(err error) { errs <- err })
	require.NoError(t, m.Start(func(*counter) error { return nil }))

	require.Eventually(t, func() bool { return c.steps.Load() > 3 }, time.Second, time.Millisecond)
	require.Len(t, errs, 3)
	require.ErrorContains(t, <-errs, "panic: boom")

	m.Close()
	waitDone(t, m)
}
