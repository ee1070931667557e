package lifecycle

import "errors"

// Instance is a component driven by a Manager on its own goroutine.
type Instance interface {
	// Step runs one iteration of the main loop. Returning *BreakError ends the loop.
	Step(stop <-chan struct{}) error
	// Release frees the instance after the loop has finished.
	Release()
	String() string
}

// Policy selects what the main loop does when Step returns an error.
type Policy int

const (
	// StopOnError ends the loop on the first error.
	StopOnError Policy = iota
	// ContinueOnError logs the error and runs the next step.
	ContinueOnError
)

func (p Policy) String() string {
	switch p {
	case StopOnError:
		return "stop"
	case ContinueOnError:
		return "continue"
	default:
		return "unknown"
	}
}

type BreakError struct{}

func (*BreakError) Error() string {
	return "break"
}

var (
	ErrStartedAlready    = errors.New("lifecycle: started already")
	ErrStartedAfterClose = errors.New("lifecycle: start after close")
)

func isBreak(err error) bool {
	var brk *BreakError
	return errors.As(err, &brk)
}
