package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindEnforcement Kind = "enforcement"
	KindStorage     Kind = "storage"
)

// Code es el tag estable que ven los callers.
type Code string

const (
	// validation
	CodeTextTooShort        Code = "TextTooShort"
	CodeTextTooLong         Code = "TextTooLong"
	CodeInvalidDateRange    Code = "InvalidDateRange"
	CodeStartInPast         Code = "StartInPast"
	CodeDurationExceeded    Code = "DurationExceeded"
	CodeOverlappingInterval Code = "OverlappingInterval"
	CodeBelowPermission     Code = "BelowPermission"
	CodeDenyReasonRequired  Code = "DenyReasonRequired"
	CodeInvalidWindow       Code = "InvalidWindow"
	CodeOpenTicketLimit     Code = "OpenTicketLimit"
	CodeOnCooldown          Code = "OnCooldown"
	CodeNoteTooLong         Code = "NoteTooLong"
	CodeInvalidArgument     Code = "InvalidArgument"

	// conflict
	CodeDuplicatePendingAppeal Code = "DuplicatePendingAppeal"
	CodeAlreadyResolved        Code = "AlreadyResolved"
	CodeAlreadyReviewed        Code = "AlreadyReviewed"
	CodeAlreadyInactive        Code = "AlreadyInactive"
	CodeNotOwner               Code = "NotOwner"
	CodeNotActive              Code = "NotActive"
	CodeAlreadyLinked          Code = "AlreadyLinked"
	CodeAlreadyClosed          Code = "AlreadyClosed"

	CodeNotFound Code = "NotFound"

	// enforcement
	CodePermissionDenied  Code = "PermissionDenied"
	CodeSubjectNotPresent Code = "SubjectNotPresent"
	CodeTimeout           Code = "Timeout"
	CodePlatformError     Code = "PlatformError"

	CodeStorage Code = "Storage"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string // legible para el usuario final
	Err     error  // causa interna, nunca se muestra
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por Code, así errors.Is(err, &Error{Code: CodeNotOwner}) funciona.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Kind == "" || t.Kind == e.Kind)
}

func newErr(k Kind, c Code, msg string, args ...any) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Kind: k, Code: c, Message: msg}
}

func Validation(c Code, msg string, args ...any) *Error {
	return newErr(KindValidation, c, msg, args...)
}

func Conflict(c Code, msg string, args ...any) *Error {
	return newErr(KindConflict, c, msg, args...)
}

func NotFound(msg string, args ...any) *Error {
	return newErr(KindNotFound, CodeNotFound, msg, args...)
}

func Enforcement(c Code, cause error) *Error {
	msg := "la acción en la plataforma falló"
	switch c {
	case CodePermissionDenied:
		msg = "el bot no tiene permisos para aplicar la acción"
	case CodeSubjectNotPresent:
		msg = "el usuario ya no está en el servidor"
	case CodeTimeout:
		msg = "la plataforma no respondió a tiempo"
	}
	return &Error{Kind: KindEnforcement, Code: c, Message: msg, Err: cause}
}

func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Code: CodeStorage, Message: "error interno, intenta más tarde", Err: cause}
}

// Sentinels para errors.Is.
var (
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrAlreadyInactive        = &Error{Code: CodeAlreadyInactive}
	ErrAlreadyResolved        = &Error{Code: CodeAlreadyResolved}
	ErrDuplicatePendingAppeal = &Error{Code: CodeDuplicatePendingAppeal}
	ErrSubjectNotPresent      = &Error{Code: CodeSubjectNotPresent}
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied}
)

func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if err == nil {
		return ""
	}
	return KindStorage
}

func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if err == nil {
		return ""
	}
	return CodeStorage
}

// UserMessage nunca expone detalles internos.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "error interno, intenta más tarde"
}
