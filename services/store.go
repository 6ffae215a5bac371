package services

import (
	"context"
	"time"

	"puzzlebot/models"
)

// PuzzleRegistry owns puzzle identity. Implementations must be safe for
// concurrent use.
type PuzzleRegistry interface {
	// Exists reports whether the puzzle has been created. Unknown ids are
	// not an error.
	Exists(ctx context.Context, id uint) (bool, error)
	// Get returns ErrPuzzleNotFound when the puzzle does not exist.
	Get(ctx context.Context, id uint) (*models.Puzzle, error)
	// GetWithAnswers is Get with the answer collection loaded, oldest first.
	GetWithAnswers(ctx context.Context, id uint) (*models.Puzzle, error)
	// Create allocates a new id and stores the puzzle atomically.
	Create(ctx context.Context, name string) (*models.Puzzle, error)
}

// AnswerLedger records answers and keeps at most one per (puzzle, user).
type AnswerLedger interface {
	// HasAnswer returns the user's answer for the puzzle, or nil when there
	// is none.
	HasAnswer(ctx context.Context, puzzleID uint, userID int64) (*models.Answer, error)
	// Register stores a new answer. It returns *AlreadyAnsweredError when
	// the user already has one for the puzzle (including when a concurrent
	// call won), and ErrPuzzleNotFound when the puzzle does not exist.
	Register(ctx context.Context, puzzleID uint, userID int64, username, text string) (*models.Answer, error)
	// Recent returns answers registered at or after since, newest first.
	Recent(ctx context.Context, since time.Time) ([]models.Answer, error)
}
