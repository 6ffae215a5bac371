package services

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinAnswerLength     = 6
	MaxAnswerLength     = 100
	MaxPuzzleNameLength = 100

	// ForbiddenCharacters may not appear in answers or puzzle names.
	ForbiddenCharacters = "#$&^<>"
)

const badSyntax = "Please check your command, bad syntax!"

// Authorizer decides whether a candidate admin token is the configured secret.
type Authorizer interface {
	Allows(token string) bool
}

// step inspects (and may fill in) an intent. A non-nil result stops the
// pipeline.
type step[T any] func(*T) *CommandError

func runSteps[T any](intent *T, steps ...step[T]) *CommandError {
	for _, s := range steps {
		if err := s(intent); err != nil {
			return err
		}
	}
	return nil
}

// AnswerIntent is a parsed "answer" command.
type AnswerIntent struct {
	Args     []string
	RawID    string
	PuzzleID uint
	Text     string
}

// ParseAnswerCommand checks the shape of an answer command and builds the
// candidate text. It does not look at the text itself; see ValidateAnswerText.
func ParseAnswerCommand(args []string) (AnswerIntent, *CommandError) {
	intent := AnswerIntent{Args: args}
	err := runSteps(&intent,
		func(a *AnswerIntent) *CommandError {
			if len(a.Args) < 2 {
				return newCommandError(KindBadSyntax, badSyntax)
			}
			return nil
		},
		func(a *AnswerIntent) *CommandError {
			a.RawID = a.Args[0]
			if !isDecimal(a.RawID) {
				return newCommandError(KindBadSyntax, "%s Puzzle ID should be a number, not %s", badSyntax, a.RawID)
			}
			a.PuzzleID = parseID(a.RawID)
			return nil
		},
		func(a *AnswerIntent) *CommandError {
			a.Text = strings.Join(a.Args[1:], " ")
			return nil
		},
	)
	return intent, err
}

// ValidateAnswerText runs the content rules on a parsed answer, in order:
// minimum length, maximum length, not only digits, no forbidden characters.
func ValidateAnswerText(intent *AnswerIntent) *CommandError {
	return runSteps(intent,
		func(a *AnswerIntent) *CommandError {
			if utf8.RuneCountInString(a.Text) < MinAnswerLength {
				return newCommandError(KindTooShort, "Your answer seems too short: %s", a.Text)
			}
			return nil
		},
		func(a *AnswerIntent) *CommandError {
			if n := utf8.RuneCountInString(a.Text); n > MaxAnswerLength {
				return newCommandError(KindTooLong, "Your answer seems too big: %d symbols!", n)
			}
			return nil
		},
		func(a *AnswerIntent) *CommandError {
			if isAllDigits(a.Text) {
				return newCommandError(KindNumericOnly, "Your answer is just a number: %s", a.Text)
			}
			return nil
		},
		func(a *AnswerIntent) *CommandError {
			if strings.ContainsAny(a.Text, ForbiddenCharacters) {
				return newCommandError(KindForbiddenCharacters, "Please do not use %s symbols in your answer.", ForbiddenCharacters)
			}
			return nil
		},
	)
}

// ValidateAnswer runs the whole answer pipeline without any storage lookups.
func ValidateAnswer(args []string) (AnswerIntent, *CommandError) {
	intent, err := ParseAnswerCommand(args)
	if err != nil {
		return intent, err
	}
	return intent, ValidateAnswerText(&intent)
}

// RegisterIntent is a parsed "register" command.
type RegisterIntent struct {
	Args  []string
	Name  string
	Token string
}

// ParseRegisterCommand validates a register command. The admin token is
// checked before the name content.
func ParseRegisterCommand(args []string, gate Authorizer) (RegisterIntent, *CommandError) {
	intent := RegisterIntent{Args: args}
	err := runSteps(&intent,
		func(r *RegisterIntent) *CommandError {
			if len(r.Args) < 2 {
				return newCommandError(KindBadSyntax, badSyntax)
			}
			return nil
		},
		func(r *RegisterIntent) *CommandError {
			last := len(r.Args) - 1
			r.Token = r.Args[last]
			r.Name = strings.Join(r.Args[:last], " ")
			return nil
		},
		func(r *RegisterIntent) *CommandError {
			return authorize(gate, r.Token)
		},
		func(r *RegisterIntent) *CommandError {
			if n := utf8.RuneCountInString(r.Name); n > MaxPuzzleNameLength {
				return newCommandError(KindTooLong, "The name for your puzzle is too long: %d", n)
			}
			return nil
		},
		func(r *RegisterIntent) *CommandError {
			if strings.ContainsAny(r.Name, ForbiddenCharacters) {
				return newCommandError(KindForbiddenCharacters, "Please do not use %s symbols in your puzzle name.", ForbiddenCharacters)
			}
			return nil
		},
	)
	return intent, err
}

// ShowIntent is a parsed "show" command.
type ShowIntent struct {
	Args     []string
	RawID    string
	PuzzleID uint
	Token    string
}

// ParseShowCommand checks the shape of a show command. Whether the puzzle
// exists is decided by the caller before AuthorizeShow runs.
func ParseShowCommand(args []string) (ShowIntent, *CommandError) {
	intent := ShowIntent{Args: args}
	err := runSteps(&intent,
		func(s *ShowIntent) *CommandError {
			if len(s.Args) != 2 {
				return newCommandError(KindBadSyntax, badSyntax)
			}
			s.RawID, s.Token = s.Args[0], s.Args[1]
			return nil
		},
		func(s *ShowIntent) *CommandError {
			if !isDecimal(s.RawID) {
				return newCommandError(KindBadSyntax, "%s Puzzle ID should be a number, not %s", badSyntax, s.RawID)
			}
			s.PuzzleID = parseID(s.RawID)
			return nil
		},
	)
	return intent, err
}

func AuthorizeShow(intent ShowIntent, gate Authorizer) *CommandError {
	return authorize(gate, intent.Token)
}

// RecentIntent is a parsed "recent" command.
type RecentIntent struct {
	Args  []string
	Token string
}

func ParseRecentCommand(args []string, gate Authorizer) (RecentIntent, *CommandError) {
	intent := RecentIntent{Args: args}
	err := runSteps(&intent,
		func(r *RecentIntent) *CommandError {
			if len(r.Args) != 1 {
				return newCommandError(KindBadSyntax, badSyntax)
			}
			r.Token = r.Args[0]
			return nil
		},
		func(r *RecentIntent) *CommandError {
			return authorize(gate, r.Token)
		},
	)
	return intent, err
}

func authorize(gate Authorizer, token string) *CommandError {
	if gate == nil || !gate.Allows(token) {
		return newCommandError(KindUnauthorized, "Authentication error. Your token %s is not valid", token)
	}
	return nil
}

// isDecimal reports whether s is a non-empty run of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// parseID converts a decimal string to a puzzle id. Values that overflow map
// to 0, which no puzzle ever has.
func parseID(s string) uint {
	id, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil {
		return 0
	}
	return uint(id)
}
