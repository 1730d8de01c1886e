package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentCancelled = "cancelled"
)

// DripCampaign is a named, ordered sequence of timed emails. Enrollment is
// keyed off TriggerEvent, so at most one active campaign should exist per
// trigger.
type DripCampaign struct {
	gorm.Model
	Name         string `gorm:"not null" json:"name"`
	TriggerEvent string `gorm:"not null;index" json:"trigger_event"`
	Status       string `gorm:"default:'active'" json:"status"` // active, paused

	// Relations
	Emails []DripEmail `gorm:"foreignKey:CampaignID" json:"emails,omitempty"`
}

// DripEmail is one step of a campaign. DelayMinutes is measured from the
// previous send (or from enrollment, for the first step).
type DripEmail struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	SequenceOrder   int    `gorm:"not null" json:"sequence_order"` // 1-based
	DelayMinutes    int    `gorm:"not null" json:"delay_minutes"`
	TemplateKey     string `gorm:"not null" json:"template_key"`
	SubjectTemplate string `gorm:"not null" json:"subject_template"`
}

// DripEnrollment is one recipient's progress pointer through a campaign.
// The (campaign, recipient) pair is unique so re-enrollment is idempotent.
type DripEnrollment struct {
	gorm.Model
	CampaignID     uint   `gorm:"not null;uniqueIndex:idx_campaign_recipient" json:"campaign_id"`
	RecipientEmail string `gorm:"not null;uniqueIndex:idx_campaign_recipient" json:"recipient_email"`
	UserID         *uint  `json:"user_id"`

	// 0 = no email sent yet; advances monotonically to the campaign's last
	// sequence position.
	CurrentSequenceOrder int        `gorm:"default:0" json:"current_sequence_order"`
	EnrolledAt           time.Time  `gorm:"not null" json:"enrolled_at"`
	LastSentAt           *time.Time `json:"last_sent_at"`
	Status               string     `gorm:"default:'active';index" json:"status"`

	// Merged into template variables when rendering each step.
	Metadata map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`

	// Relations
	Campaign DripCampaign `json:"-"`
}
