package inference

import (
	"errors"
	"fmt"
)

// Failure reasons reported to MetricsInterface.FailuresInc.
const (
	ReasonValidation = "validation"
	ReasonShape      = "input_shape"
	ReasonEncoding   = "encoding"
	ReasonScore      = "score"
	ReasonCanceled   = "canceled"
)

// ValidationError reports client input that cannot be scored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// BatchError locates the record of a batch that failed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsValidation reports whether err is caused by client input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
