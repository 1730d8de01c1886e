package automation

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"riseloop/models"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DripEngine advances per-recipient enrollments through a campaign's timed
// email sequence. It is driven by elapsed time, not events: an external cron
// or the in-process worker calls Sweep on an interval.
type DripEngine struct {
	DB     *gorm.DB
	Mailer EmailSender
	Logger *logrus.Entry
}

func NewDripEngine(db *gorm.DB, mailer EmailSender) *DripEngine {
	return &DripEngine{
		DB:     db,
		Mailer: mailer,
		Logger: logrus.WithField("component", "drip"),
	}
}

type EnrollResult struct {
	Success         bool `json:"success"`
	EnrollmentID    uint `json:"enrollment_id"`
	AlreadyEnrolled bool `json:"already_enrolled"`
}

// Enroll puts a recipient into the active campaign for the given trigger
// event. Idempotent: an existing (campaign, recipient) enrollment is
// returned as success without creating a duplicate, regardless of its
// status — a completed or cancelled recipient is not restarted.
func (d *DripEngine) Enroll(campaignTriggerEvent, recipientEmail string, metadata map[string]interface{}, userID *uint) (EnrollResult, error) {
	if err := checkmail.ValidateFormat(recipientEmail); err != nil {
		return EnrollResult{}, fmt.Errorf("invalid recipient email %q: %w", recipientEmail, err)
	}

	var campaign models.DripCampaign
	if err := d.DB.Where("trigger_event = ? AND status = ?", campaignTriggerEvent, "active").
		First(&campaign).Error; err != nil {
		return EnrollResult{}, fmt.Errorf("no active campaign for trigger %q: %w", campaignTriggerEvent, err)
	}

	var existing models.DripEnrollment
	err := d.DB.Where("campaign_id = ? AND recipient_email = ?", campaign.ID, recipientEmail).
		First(&existing).Error
	if err == nil {
		return EnrollResult{Success: true, EnrollmentID: existing.ID, AlreadyEnrolled: true}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return EnrollResult{}, fmt.Errorf("enrollment lookup failed: %w", err)
	}

	enrollment := models.DripEnrollment{
		CampaignID:     campaign.ID,
		RecipientEmail: recipientEmail,
		UserID:         userID,
		EnrolledAt:     time.Now(),
		Status:         models.EnrollmentActive,
		Metadata:       metadata,
	}
	// DoNothing keeps the unique (campaign, recipient) constraint the final
	// arbiter when a concurrent enroll races the lookup above.
	if err := d.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollment).Error; err != nil {
		return EnrollResult{}, fmt.Errorf("failed to create enrollment: %w", err)
	}
	if enrollment.ID == 0 {
		if err := d.DB.Where("campaign_id = ? AND recipient_email = ?", campaign.ID, recipientEmail).
			First(&enrollment).Error; err != nil {
			return EnrollResult{}, fmt.Errorf("enrollment re-fetch failed: %w", err)
		}
		return EnrollResult{Success: true, EnrollmentID: enrollment.ID, AlreadyEnrolled: true}, nil
	}

	d.Logger.WithFields(logrus.Fields{
		"campaign":  campaign.Name,
		"recipient": recipientEmail,
	}).Info("enrolled recipient")
	return EnrollResult{Success: true, EnrollmentID: enrollment.ID}, nil
}

// ReadyEnrollment is an enrollment whose next email is due, with the step
// resolved and template variables merged.
type ReadyEnrollment struct {
	Enrollment models.DripEnrollment
	NextEmail  models.DripEmail
	Variables  map[string]interface{}
}

// GetReadyEnrollments returns active enrollments whose next email's delay
// has elapsed. Delay is measured from the previous send; before the first
// send it is measured from enrollment time.
func (d *DripEngine) GetReadyEnrollments(now time.Time) ([]ReadyEnrollment, error) {
	var enrollments []models.DripEnrollment
	if err := d.DB.Joins("JOIN drip_campaigns ON drip_campaigns.id = drip_enrollments.campaign_id").
		Where("drip_enrollments.status = ?", models.EnrollmentActive).
		Where("drip_campaigns.status = ?", "active").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	var ready []ReadyEnrollment
	for _, enrollment := range enrollments {
		var next models.DripEmail
		err := d.DB.Where("campaign_id = ? AND sequence_order = ?",
			enrollment.CampaignID, enrollment.CurrentSequenceOrder+1).
			First(&next).Error
		if err == gorm.ErrRecordNotFound {
			// Campaign has no further steps (it may have been shortened after
			// this recipient enrolled); close the enrollment out.
			d.complete(enrollment.ID)
			continue
		}
		if err != nil {
			d.Logger.WithError(err).WithField("enrollment_id", enrollment.ID).Error("failed to resolve next email")
			continue
		}

		base := enrollment.EnrolledAt
		if enrollment.LastSentAt != nil {
			base = *enrollment.LastSentAt
		}
		due := base.Add(time.Duration(next.DelayMinutes) * time.Minute)
		if now.Before(due) {
			continue
		}

		variables := map[string]interface{}{
			"recipient_email": enrollment.RecipientEmail,
			"sequence_order":  next.SequenceOrder,
		}
		for k, v := range enrollment.Metadata {
			variables[k] = v
		}
		ready = append(ready, ReadyEnrollment{Enrollment: enrollment, NextEmail: next, Variables: variables})
	}
	return ready, nil
}

// Advance records that the email at sentSequenceOrder went out. The pointer
// only moves forward; when it reaches the campaign's last position the
// enrollment completes and leaves future sweeps.
func (d *DripEngine) Advance(enrollmentID uint, sentSequenceOrder int) error {
	var enrollment models.DripEnrollment
	if err := d.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return fmt.Errorf("enrollment %d not found: %w", enrollmentID, err)
	}
	if sentSequenceOrder <= enrollment.CurrentSequenceOrder {
		return nil
	}

	var lastOrder int
	row := d.DB.Model(&models.DripEmail{}).
		Where("campaign_id = ?", enrollment.CampaignID).
		Select("COALESCE(MAX(sequence_order), 0)").
		Row()
	if err := row.Scan(&lastOrder); err != nil {
		return fmt.Errorf("failed to resolve campaign length: %w", err)
	}

	updates := map[string]interface{}{
		"current_sequence_order": sentSequenceOrder,
		"last_sent_at":           time.Now(),
	}
	if sentSequenceOrder >= lastOrder {
		updates["status"] = models.EnrollmentCompleted
	}
	return d.DB.Model(&enrollment).Updates(updates).Error
}

// Cancel terminates an enrollment; no further emails are sent.
func (d *DripEngine) Cancel(enrollmentID uint) error {
	result := d.DB.Model(&models.DripEnrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentActive).
		Update("status", models.EnrollmentCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("enrollment %d is not active", enrollmentID)
	}
	return nil
}

func (d *DripEngine) complete(enrollmentID uint) {
	if err := d.DB.Model(&models.DripEnrollment{}).
		Where("id = ?", enrollmentID).
		Update("status", models.EnrollmentCompleted).Error; err != nil {
		d.Logger.WithError(err).WithField("enrollment_id", enrollmentID).Error("failed to complete enrollment")
	}
}

type SweepResult struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Errors    []string `json:"errors"`
}

// Sweep sends every due drip email. An enrollment advances only after its
// send succeeded, so a failed send is retried on the next sweep. A bad
// subject template is a configuration error: logged, reported, skipped.
func (d *DripEngine) Sweep(now time.Time) (SweepResult, error) {
	result := SweepResult{Errors: []string{}}

	ready, err := d.GetReadyEnrollments(now)
	if err != nil {
		return result, err
	}

	for _, item := range ready {
		result.Processed++

		subject, err := renderSubject(item.NextEmail.SubjectTemplate, item.Variables)
		if err != nil {
			d.Logger.WithError(err).WithField("enrollment_id", item.Enrollment.ID).Warn("bad subject template, skipping")
			result.Errors = append(result.Errors, fmt.Sprintf("enrollment %d: %v", item.Enrollment.ID, err))
			continue
		}

		if err := d.Mailer.Send(item.Enrollment.RecipientEmail, subject, item.NextEmail.TemplateKey, item.Variables); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("enrollment %d: %v", item.Enrollment.ID, err))
			continue
		}

		if err := d.Advance(item.Enrollment.ID, item.NextEmail.SequenceOrder); err != nil {
			// The email went out but the pointer did not move; the next sweep
			// re-sends. Accepted duplicate-send risk of the at-least-once model.
			d.Logger.WithError(err).WithField("enrollment_id", item.Enrollment.ID).Error("failed to advance enrollment")
			result.Errors = append(result.Errors, fmt.Sprintf("enrollment %d: advance: %v", item.Enrollment.ID, err))
			continue
		}
		result.Sent++
	}
	return result, nil
}

func renderSubject(subjectTemplate string, variables map[string]interface{}) (string, error) {
	tmpl, err := template.New("subject").Parse(subjectTemplate)
	if err != nil {
		return "", fmt.Errorf("parse subject template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("render subject template: %w", err)
	}
	return buf.String(), nil
}
