package core

import "github.com/pkg/errors"

// Kind classifies domain errors; the API maps each kind to a status code.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindPermissionDenied       Kind = "permission_denied"
	KindInvalidActor           Kind = "invalid_actor"
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindAttemptLimitExceeded   Kind = "attempt_limit_exceeded"
	KindExpiredSession         Kind = "expired_session"
	KindSessionAlreadyFinished Kind = "session_already_finished"
)

// Validation sub-codes.
const (
	CodeInvalidRoleAssignment = "invalid_role_assignment"
	CodeDuplicateOrder        = "duplicate_order"
	CodeInvalidTeacherRole    = "invalid_teacher_role"
	CodeDuplicateAssistant    = "duplicate_assistant"
	CodeAlreadyEnrolled       = "already_enrolled"
	CodeInvalidColor          = "invalid_color"
	CodeInvalidDocument       = "invalid_document"
	CodeRoleInUse             = "role_in_use"
)

// Error is a domain error of a given Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func (err *Error) Error() string {
	return err.Msg
}

// Is reports whether target is an *Error of the same Kind (and same message, if target has one).
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == err.Kind && (t.Msg == "" || t.Msg == err.Msg)
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Code   string
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// NewCodedValidationError returns a ValidationError carrying a machine readable sub-code.
func NewCodedValidationError(code string, err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Code: code, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return ""
}

// KindOf returns the Kind of err, or "" for errors that are not domain errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}
	return ""
}

// ValidationCode returns the sub-code of a ValidationError, if any.
func ValidationCode(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code
	}
	return ""
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
