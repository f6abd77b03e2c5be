package pipeline

import "github.com/rotisserie/eris"

var (
	// ErrInvalidInput is returned when a ticket fails validation. No step
	// after validation runs.
	ErrInvalidInput = eris.New("pipeline: invalid input")
	// ErrConfig marks a configuration defect that leaves a step without a
	// usable strategy.
	ErrConfig = eris.New("pipeline: configuration error")
)
