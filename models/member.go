package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a narrow read model of a platform member, synced by the main
// application. The automation service only reads it: win-back detection
// looks at LastActivityAt, streak reminders at CurrentStreak.
type Member struct {
	gorm.Model
	UserID uint   `gorm:"not null;uniqueIndex" json:"user_id"`
	Email  string `gorm:"not null;index" json:"email"`
	Name   string `json:"name"`

	CurrentStreak  int        `gorm:"default:0" json:"current_streak"`
	LastActivityAt *time.Time `gorm:"index" json:"last_activity_at"`

	// Opt-outs honored by every outbound email path.
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
}
