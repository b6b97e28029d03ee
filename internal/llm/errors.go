package llm

import (
	"errors"
	"fmt"
)

// SchemaError marks a model reply that could not be parsed into the
// expected shape. It is retryable inside the adapter; it never escapes
// Invoke directly (an exhausted retry path surfaces as InvocationError).
type SchemaError struct {
	Model string
	Raw   string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm: %s returned non-conforming reply: %v", e.Model, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// InvocationError means neither the primary nor the fallback model produced
// a schema-conforming reply. It is fatal to the pipeline run.
type InvocationError struct {
	Stage    string
	Primary  string
	Fallback string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("llm: invocation failed for stage %q (primary %s, fallback %s): %v",
		e.Stage, e.Primary, e.Fallback, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsInvocationError reports whether the error chain contains an InvocationError.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
