package models

import "gorm.io/gorm"

// Entitlement records that a subject holds a grant (course access, bonus
// content). The (subject, type) pair is unique so grants are idempotent
// under at-least-once dispatch.
type Entitlement struct {
	gorm.Model
	SubjectID string `gorm:"not null;uniqueIndex:idx_subject_entitlement" json:"subject_id"`
	Type      string `gorm:"not null;uniqueIndex:idx_subject_entitlement" json:"type"`
}

// PointsEntry is one row of the points ledger. EventID ties an award back to
// the event that produced it; the (subject, reason, event) uniqueness makes
// redelivered dispatches award at most once per event.
type PointsEntry struct {
	gorm.Model
	SubjectID string `gorm:"not null;uniqueIndex:idx_points_award" json:"subject_id"`
	Reason    string `gorm:"not null;uniqueIndex:idx_points_award" json:"reason"`
	EventID   uint   `gorm:"not null;uniqueIndex:idx_points_award" json:"event_id"`
	Points    int    `gorm:"not null" json:"points"`
}
