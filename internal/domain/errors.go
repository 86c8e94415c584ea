package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidJob is returned when a submission is rejected before it reaches the queue
	ErrInvalidJob = errors.New("invalid job")

	// ErrStoreUnavailable is returned when the job store cannot be reached
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrChannelNotFound is returned when the originating channel no longer exists
	ErrChannelNotFound = errors.New("channel not found")

	// ErrTimeout is returned when a processor exceeds its category timeout
	ErrTimeout = errors.New("timeout")

	// ErrOutputTooLarge is returned when a result exceeds the destination's delivery limit
	ErrOutputTooLarge = errors.New("output too large")

	// ErrOutputMissing is returned when a processor reports success but no file exists
	ErrOutputMissing = errors.New("output file not found")

	// ErrInvalidInput is returned by processors that reject their input
	ErrInvalidInput = errors.New("invalid input")
)

// ProcessorError wraps a failure raised by a category processor
type ProcessorError struct {
	Category Category
	Err      error
}

func (e *ProcessorError) Error() string {
	return e.Err.Error()
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// NewProcessorError creates a new processor error
func NewProcessorError(category Category, err error) error {
	return &ProcessorError{Category: category, Err: err}
}

// TooLargeError carries the sizes behind ErrOutputTooLarge.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("output too large: %d bytes > %d bytes", e.Size, e.Limit)
}

func (e *TooLargeError) Unwrap() error {
	return ErrOutputTooLarge
}

// ErrJobNotClaimed is returned when an operator requeues a job that is not processing
var ErrJobNotClaimed = errors.New("job is not processing")
