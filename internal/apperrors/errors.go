// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed request: unknown status value, missing
// template id, unresolvable start step. Nothing is mutated when one is
// returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError is a reference to a job, template or lead that does not
// exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NewJobNotFound(id string) error      { return &NotFoundError{Kind: "job", ID: id} }
func NewTemplateNotFound(id string) error { return &NotFoundError{Kind: "template", ID: id} }

// TransientSendError is an individual recipient's send failure. It is
// counted on the job and never aborts the run.
type TransientSendError struct {
	Phone string
	Err   error
}

func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Phone, e.Err)
}

func (e *TransientSendError) Unwrap() error { return e.Err }

// FatalRunError aborts a dispatch run; the job ends up failed.
type FatalRunError struct {
	Stage string
	Err   error
}

func (e *FatalRunError) Error() string {
	return fmt.Sprintf("dispatch run aborted at %s: %v", e.Stage, e.Err)
}

func (e *FatalRunError) Unwrap() error { return e.Err }

func NewFatalRun(stage string, err error) error {
	return &FatalRunError{Stage: stage, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
