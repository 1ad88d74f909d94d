package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap one of these so callers can classify with errors.Is.
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBlocked      = errors.New("blocked")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
)

var (
	// ErrPollAlreadyActive is returned when a teacher creates a poll while another is running.
	ErrPollAlreadyActive = fmt.Errorf("%w: there is already an active poll", ErrConflict)
	// ErrAlreadyAnswered is returned for a second answer by the same student to the same poll.
	ErrAlreadyAnswered = fmt.Errorf("%w: student has already answered this poll", ErrConflict)
	// ErrNoActivePoll indicates an action that needs a running poll.
	ErrNoActivePoll = fmt.Errorf("%w: no active poll", ErrInvalidState)
	// ErrPollNotActive indicates the referenced poll is not the one currently running.
	ErrPollNotActive = fmt.Errorf("%w: poll is not active", ErrInvalidState)
	// ErrTeacherOnly is returned for privileged actions from non-teacher connections.
	ErrTeacherOnly = fmt.Errorf("%w: only the teacher can perform this action", ErrUnauthorized)
	// ErrInvalidStudent is returned when a connection acts on behalf of another student.
	ErrInvalidStudent = fmt.Errorf("%w: invalid student", ErrUnauthorized)
	// ErrStudentKicked is returned when a removed student tries to join or answer.
	ErrStudentKicked = fmt.Errorf("%w: you have been removed from the poll system", ErrBlocked)
	// ErrConnectionBound is returned when a connection that already joined tries to join as another student.
	ErrConnectionBound = fmt.Errorf("%w: connection already joined as another student", ErrInvalidState)
	// ErrPollNotFound indicates an unknown poll id.
	ErrPollNotFound = fmt.Errorf("%w: poll not found", ErrNotFound)
	// ErrStudentNotFound indicates an unknown student.
	ErrStudentNotFound = fmt.Errorf("%w: student not found", ErrNotFound)
	// ErrParticipantNotFound is returned when a connection acts before joining.
	ErrParticipantNotFound = fmt.Errorf("%w: participant has not joined", ErrNotFound)
	// ErrOptionNotFound indicates a submitted option id is not part of the poll.
	ErrOptionNotFound = fmt.Errorf("%w: option not found", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("%w: quiz not found", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question id is invalid.
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrNotFound)
)

// Invalid builds an InvalidInput error with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable wraps a collaborator failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Wire codes sent to clients alongside error messages.
const (
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeBlocked      = "BLOCKED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"
	CodeInvalidState = "INVALID_STATE"
	CodeInternal     = "INTERNAL_ERROR"
)

// Code maps an error to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBlocked):
		return CodeBlocked
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}
