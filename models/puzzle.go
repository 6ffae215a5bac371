package models

import (
	"time"
)

type Puzzle struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:150"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:PuzzleID;constraint:OnDelete:RESTRICT"`
}
