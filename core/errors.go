package core

import "github.com/pkg/errors"

// FieldError pins a validation failure to a single input field. Field carries
// the JSON tag name so API clients can map the error straight onto a form.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries field-level failures raised outside the struct
// validator, such as a username uniqueness check done against the store.
// The API error handler renders it as a {field: message} map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldMap flattens the field errors into the shape the API envelope renders.
// Nil when the error carries no field detail.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	flds := make(map[string]string, len(err.Fields))
	for _, fld := range err.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}

// shutdown marks an error as fatal to the process, not just the request.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether the error chain carries a shutdown error.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
