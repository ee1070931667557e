package lifecycle

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ugparu/twig/utils/logger"
)

// Manager runs the Step loop of one Instance.
type Manager[T Instance] struct {
	instance  T
	policy    Policy
	onError   func(error)
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New returns a manager for instance. onError, when not nil, sees every step error
// except *BreakError, including recovered panics.
func New[T Instance](instance T, policy Policy, onError func(error)) *Manager[T] {
	return &Manager[T]{
		instance: instance,
		policy:   policy,
		onError:  onError,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start calls setup and, when it succeeds, launches the main loop.
func (m *Manager[T]) Start(setup func(T) error) (err error) {
	select {
	case <-m.stop:
		return ErrStartedAfterClose
	default:
		err = ErrStartedAlready
	}
	m.startOnce.Do(func() {
		logger.Debugf(m.instance, "Starting with %v policy", m.policy)
		if err = setup(m.instance); err != nil {
			m.report(err)
			close(m.done)
			return
		}
		go m.process()
	})
	return err
}

func (m *Manager[T]) process() {
	logger.Debug(m.instance, "Entering main loop")
	defer close(m.done)

	for m.step() {
	}
}

func (m *Manager[T]) step() (next bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(m.instance, "Panic detected! Recovering from: %v", r)
			logger.Errorf(m.instance, "%s", debug.Stack())
			m.report(fmt.Errorf("panic: %v", r))
			next = m.policy == ContinueOnError
		}
	}()

	err := m.instance.Step(m.stop)
	switch {
	case err == nil:
		return true
	case isBreak(err):
		return false
	default:
		logger.Warningf(m.instance, "Detected error: %v", err)
		m.report(err)
		return m.policy == ContinueOnError
	}
}

func (m *Manager[T]) report(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

// Close stops the loop, waits for it and releases the instance. Later calls do nothing.
func (m *Manager[T]) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.startOnce.Do(func() {
			close(m.done)
		})
		<-m.done
		m.instance.Release()
	})
}

// Done is closed once the main loop has exited.
func (m *Manager[T]) Done() <-chan struct{} {
	return m.done
}
