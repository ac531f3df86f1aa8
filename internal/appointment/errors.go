package appointment

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. Anything that is not a domain error is KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidTransition
	KindPastDate
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindPastDate:
		return "past_date"
	default:
		return "internal"
	}
}

// Error is a domain error with a stable Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and message so errors.Is works on the
// values returned by repositories.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// InvalidTransitionError reports a status edge missing from the transition table.
type InvalidTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

var (
	ErrPatientNotFound     = &Error{Kind: KindNotFound, Message: "patient not found"}
	ErrDoctorNotFound      = &Error{Kind: KindNotFound, Message: "doctor not found"}
	ErrAppointmentNotFound = &Error{Kind: KindNotFound, Message: "appointment not found"}

	ErrSlotAlreadyBooked = &Error{Kind: KindConflict, Message: "time slot already booked"}
	ErrSlotBeingBooked   = &Error{Kind: KindConflict, Message: "slot is currently being booked, please retry"}

	ErrPastDate = &Error{Kind: KindPastDate, Message: "cannot delete past or today's appointments, cancel instead"}

	ErrAccessDenied = &Error{Kind: KindForbidden, Message: "access denied"}
)

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// KindOf returns the domain kind of err, or KindInternal.
func KindOf(err error) Kind {
	var it *InvalidTransitionError
	if errors.As(err, &it) {
		return KindInvalidTransition
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
