package twig

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedParameterSet reports an SPS or PPS field out of its expected range.
	ErrMalformedParameterSet = errors.New("malformed parameter set")
	// ErrMalformedSliceHeader reports a slice header that cannot be decoded.
	ErrMalformedSliceHeader = errors.New("malformed slice header")
	// ErrUnsupportedFeature reports stream features the engine path does not handle.
	ErrUnsupportedFeature = errors.New("unsupported feature")
	// ErrResourceExhausted reports that no decode target could be found in the frame pool.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrHardwareTimeout reports that the engine did not finish within its bound.
	ErrHardwareTimeout = errors.New("hardware timeout")
	// ErrHardwareError reports that the engine finished with its error status set.
	ErrHardwareError = errors.New("hardware decode error")
	// ErrAllocationFailed reports that the allocator denied a DMA buffer request.
	ErrAllocationFailed = errors.New("allocation failed")
	// ErrNoParameterSets reports a slice that arrived before its SPS and PPS.
	ErrNoParameterSets = errors.New("no parameter sets")
)

// DecodeError describes the failure of one decode call.
type DecodeError struct {
	Op    string // Sequencer stage that failed.
	Slice int    // Index of the slice inside the access unit, -1 when not slice related.
	Err   error
}

// Error returns the error message for DecodeError.
func (e *DecodeError) Error() string {
	if e.Slice < 0 {
		return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("decode %s (slice %d): %v", e.Op, e.Slice, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Kind maps err to one of the package error kinds, or nil when err is not one of them.
func Kind(err error) error {
	for _, kind := range []error{
		ErrMalformedParameterSet,
		ErrMalformedSliceHeader,
		ErrUnsupportedFeature,
		ErrResourceExhausted,
		ErrHardwareTimeout,
		ErrHardwareError,
		ErrAllocationFailed,
		ErrNoParameterSets,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
