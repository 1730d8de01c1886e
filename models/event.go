package models

import (
	"time"

	"gorm.io/gorm"
)

// Event names emitted by the platform. The catalog is open-ended; these are
// the ones the shipped rule set and drip campaigns key on.
const (
	EventUserSignup        = "user_signup"
	EventJournalCompleted  = "journal_completed"
	EventWebinarRegistered = "webinar_registered"
	EventWinBackInactive   = "winback_inactive"
)

// AutomationEvent is an append-only record that something happened on the
// platform. Rows are never deleted; the only mutation is setting HandledAt
// once dispatch completes without errors.
type AutomationEvent struct {
	gorm.Model
	EventName string                 `gorm:"not null;index" json:"event_name"`
	SubjectID string                 `gorm:"not null;index" json:"subject_id"` // user id or email
	Payload   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"payload"`

	HandledAt *time.Time `gorm:"index" json:"handled_at"`
}
