package services

import (
	"errors"
	"fmt"

	"puzzlebot/models"
)

// Kind classifies why a command was rejected.
type Kind int

const (
	KindBadSyntax Kind = iota + 1
	KindTooShort
	KindTooLong
	KindNumericOnly
	KindForbiddenCharacters
	KindNotFound
	KindAlreadyAnswered
	KindUnauthorized
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindBadSyntax:
		return "bad_syntax"
	case KindTooShort:
		return "too_short"
	case KindTooLong:
		return "too_long"
	case KindNumericOnly:
		return "numeric_only"
	case KindForbiddenCharacters:
		return "forbidden_characters"
	case KindNotFound:
		return "not_found"
	case KindAlreadyAnswered:
		return "already_answered"
	case KindUnauthorized:
		return "unauthorized"
	case KindPersistence:
		return "persistence_error"
	default:
		return "unknown"
	}
}

// CommandError is a rejection that is reported back to the sender. Message
// is safe to show to users; Err holds the internal cause, if any.
type CommandError struct {
	Kind    Kind
	Command string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func newCommandError(kind Kind, format string, args ...any) *CommandError {
	return &CommandError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or 0 when err is not a CommandError.
func KindOf(err error) Kind {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}

var ErrPuzzleNotFound = errors.New("puzzle not found")

// AlreadyAnsweredError is returned by AnswerLedger.Register when the user has
// an answer for the puzzle already. Existing is the stored answer.
type AlreadyAnsweredError struct {
	Existing *models.Answer
}

func (e *AlreadyAnsweredError) Error() string {
	return fmt.Sprintf("user %d already answered puzzle %d", e.Existing.UserID, e.Existing.PuzzleID)
}
