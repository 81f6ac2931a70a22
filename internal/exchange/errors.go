package exchange

import "errors"

var (
	// ErrAbsent is returned when no entry exists for a (run, task, label) key.
	// It is a regular, checkable outcome: the producer may not have run yet,
	// may not have published that label, or the label may be mistyped.
	ErrAbsent = errors.New("exchange entry absent")

	// ErrIdentity is returned when a publish names a producer other than a
	// task instance currently executing in the run.
	ErrIdentity = errors.New("task may only publish under its own identity")

	// ErrUnknownRun is returned when publishing into, or entering, a run that
	// is not active.
	ErrUnknownRun = errors.New("run is not active")

	// ErrEmptyLabel is returned when a label is the empty string.
	ErrEmptyLabel = errors.New("label must not be empty")
)
