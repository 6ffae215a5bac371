package services

import (
	"context"
	"errors"
	"fmt"

	"puzzlebot/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PuzzleService is the Postgres-backed PuzzleRegistry.
type PuzzleService struct {
	db    *gorm.DB
	cache ExistenceCache
	log   logrus.FieldLogger
}

// NewPuzzleService builds the registry. cache may be nil.
func NewPuzzleService(db *gorm.DB, cache ExistenceCache, log logrus.FieldLogger) *PuzzleService {
	return &PuzzleService{db: db, cache: cache, log: log}
}

func (s *PuzzleService) Exists(ctx context.Context, id uint) (bool, error) {
	if s.cache != nil {
		known, err := s.cache.Known(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("puzzle_id", id).Warn("Existence cache lookup failed")
		} else if known {
			return true, nil
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Puzzle{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check puzzle %d: %w", id, err)
	}
	if count == 0 {
		return false, nil
	}

	s.remember(ctx, id)
	return true, nil
}

func (s *PuzzleService) Get(ctx context.Context, id uint) (*models.Puzzle, error) {
	var puzzle models.Puzzle
	err := s.db.WithContext(ctx).First(&puzzle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPuzzleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load puzzle %d: %w", id, err)
	}
	return &puzzle, nil
}

func (s *PuzzleService) GetWithAnswers(ctx context.Context, id uint) (*models.Puzzle, error) {
	var puzzle models.Puzzle
	err := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("answers.registered, answers.id")
		}).
		First(&puzzle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPuzzleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load puzzle %d: %w", id, err)
	}
	return &puzzle, nil
}

func (s *PuzzleService) Create(ctx context.Context, name string) (*models.Puzzle, error) {
	puzzle := models.Puzzle{Name: name}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&puzzle).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create puzzle: %w", err)
	}

	s.remember(ctx, puzzle.ID)
	return &puzzle, nil
}

func (s *PuzzleService) remember(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Remember(ctx, id); err != nil {
		s.log.WithError(err).WithField("puzzle_id", id).Warn("Failed to cache puzzle existence")
	}
}
