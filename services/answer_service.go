package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"puzzlebot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnswerService is the Postgres-backed AnswerLedger. Uniqueness per
// (puzzle, user) comes from the idx_answer_puzzle_user index; Register never
// relies on a prior read to enforce it.
type AnswerService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAnswerService(db *gorm.DB) *AnswerService {
	return &AnswerService{db: db, now: time.Now}
}

func (s *AnswerService) HasAnswer(ctx context.Context, puzzleID uint, userID int64) (*models.Answer, error) {
	var answer models.Answer
	err := s.db.WithContext(ctx).
		Where("puzzle_id = ? AND user_id = ?", puzzleID, userID).
		First(&answer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up answer: %w", err)
	}
	return &answer, nil
}

func (s *AnswerService) Register(ctx context.Context, puzzleID uint, userID int64, username, text string) (*models.Answer, error) {
	answer := models.Answer{
		PuzzleID: puzzleID,
		UserID:   userID,
		Username: username,
		Text:     text,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Puzzle{}).Where("id = ?", puzzleID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPuzzleNotFound
		}

		answer.Registered = s.now()
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "puzzle_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&answer)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing models.Answer
			if err := tx.Where("puzzle_id = ? AND user_id = ?", puzzleID, userID).First(&existing).Error; err != nil {
				return err
			}
			return &AlreadyAnsweredError{Existing: &existing}
		}
		return nil
	})

	var already *AlreadyAnsweredError
	switch {
	case err == nil:
		return &answer, nil
	case errors.As(err, &already), errors.Is(err, ErrPuzzleNotFound):
		return nil, err
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return nil, ErrPuzzleNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// The transaction is aborted at this point; read the winner outside it.
		existing, lookupErr := s.HasAnswer(ctx, puzzleID, userID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to register answer: %w", err)
		}
		return nil, &AlreadyAnsweredError{Existing: existing}
	default:
		return nil, fmt.Errorf("failed to register answer: %w", err)
	}
}

func (s *AnswerService) Recent(ctx context.Context, since time.Time) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.WithContext(ctx).
		Where("registered >= ?", since).
		Order("registered DESC, id DESC").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent answers: %w", err)
	}
	return answers, nil
}
