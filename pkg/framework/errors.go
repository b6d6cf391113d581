package framework

import "strings"

// AggregatedError collects the errors of tasks stopped together.
type AggregatedError struct {
	Errors []error
}

// Error implements error. A single error reads as itself.
func (e *AggregatedError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ""
	case 1:
		return e.Errors[0].Error()
	}
	msg := make([]string, len(e.Errors)+1)
	msg[0] = "Multiple errors:"
	for n, err := range e.Errors {
		msg[n+1] = err.Error()
	}
	return strings.Join(msg, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}

// Add adds errors to be aggregated. nil is skipped and nested aggregates
// are flattened.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		switch v := err.(type) {
		case nil:
		case *AggregatedError:
			e.Add(v.Errors...)
		default:
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns aggregated error if any error happened.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
