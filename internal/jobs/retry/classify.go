// Package retry is the Retry / Failure Manager (spec §4.7): error
// classification and exponential backoff for the Task Executor's failure
// path.
package retry

import (
	"errors"

	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

// Class is the error family spec §4.7 classifies task failures into.
type Class int

const (
	// ClassContractViolation: wrong type, schema mismatch, missing
	// required field. Never retried.
	ClassContractViolation Class = iota
	// ClassBusiness: resource not found, validation failure. Never retried.
	ClassBusiness
	// ClassTransient: timeout, connection reset, downstream 5xx, queue
	// throttle. Retried with exponential backoff up to max_retries.
	ClassTransient
	// ClassUnclassified: an error a handler did not wrap with AsTransient/
	// AsBusiness/AsContractViolation. Treated as transient on the first
	// occurrence and permanent thereafter.
	ClassUnclassified
)

func (c Class) String() string {
	switch c {
	case ClassContractViolation:
		return "contract_violation"
	case ClassBusiness:
		return "business"
	case ClassTransient:
		return "transient"
	default:
		return "unclassified"
	}
}

// classifiedError lets a TaskHandler tag its error with a Class without the
// handler package importing this one's internals beyond the three
// constructors below.
type classifiedError struct {
	class Class
	err   error
}

func (c *classifiedError) Error() string { return c.err.Error() }
func (c *classifiedError) Unwrap() error { return c.err }

// AsTransient wraps err as a retryable transient failure.
func AsTransient(err error) error { return &classifiedError{class: ClassTransient, err: err} }

// AsBusiness wraps err as a non-retryable business-logic failure.
func AsBusiness(err error) error { return &classifiedError{class: ClassBusiness, err: err} }

// AsContractViolation wraps err as a non-retryable malformed-input failure.
func AsContractViolation(err error) error {
	return &classifiedError{class: ClassContractViolation, err: err}
}

// Classify determines which family err belongs to. Errors a handler wrapped
// with AsTransient/AsBusiness/AsContractViolation keep their tag; a bare
// joberrors.ErrContractViolation is recognized too; everything else is
// ClassUnclassified.
func Classify(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	if errors.Is(err, joberrors.ErrContractViolation) {
		return ClassContractViolation
	}
	return ClassUnclassified
}

// ShouldRetry decides whether a task that failed with class, having already
// been retried retryCount times, gets one more attempt.
func ShouldRetry(class Class, retryCount, maxRetries int) bool {
	switch class {
	case ClassContractViolation, ClassBusiness:
		return false
	case ClassTransient:
		return retryCount < maxRetries
	case ClassUnclassified:
		return retryCount == 0 && maxRetries > 0
	default:
		return false
	}
}
