package models

import (
	"time"
)

// Answer is a single user's submission to a puzzle. The composite unique
// index keeps at most one row per (puzzle, user).
type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	PuzzleID   uint      `json:"puzzle_id" gorm:"not null;uniqueIndex:idx_answer_puzzle_user"`
	UserID     int64     `json:"user_id" gorm:"not null;uniqueIndex:idx_answer_puzzle_user"`
	Username   string    `json:"username"`
	Text       string    `json:"text" gorm:"size:150;not null"`
	Registered time.Time `json:"registered" gorm:"not null;index"`
}
