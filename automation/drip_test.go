package automation

import (
	"testing"
	"time"

	"riseloop/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedCampaign(t *testing.T, db *gorm.DB, trigger string, delays ...int) models.DripCampaign {
	t.Helper()
	campaign := models.DripCampaign{
		Name:         "campaign_" + trigger,
		TriggerEvent: trigger,
		Status:       "active",
	}
	require.NoError(t, db.Create(&campaign).Error)
	for i, delay := range delays {
		require.NoError(t, db.Create(&models.DripEmail{
			CampaignID:      campaign.ID,
			SequenceOrder:   i + 1,
			DelayMinutes:    delay,
			TemplateKey:     "welcome_webinar",
			SubjectTemplate: "Step {{.sequence_order}} for {{.recipient_email}}",
		}).Error)
	}
	return campaign
}

func newTestDrip(t *testing.T) (*DripEngine, *recorder, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	rec := &recorder{}
	return NewDripEngine(db, rec), rec, db
}

func TestEnrollIsIdempotent(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 60)

	first, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyEnrolled)

	second, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com",
		map[string]interface{}{"source": "retry"}, nil)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyEnrolled)
	assert.Equal(t, first.EnrollmentID, second.EnrollmentID)

	var count int64
	require.NoError(t, db.Model(&models.DripEnrollment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnrollRejectsBadInput(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 60)

	_, err := drip.Enroll(models.EventWebinarRegistered, "not-an-email", nil, nil)
	assert.Error(t, err)

	_, err = drip.Enroll("no_such_trigger", "ada@example.com", nil, nil)
	assert.Error(t, err)
}

func TestEnrollSkipsPausedCampaign(t *testing.T) {
	drip, _, db := newTestDrip(t)
	campaign := seedCampaign(t, db, models.EventWebinarRegistered, 60)
	require.NoError(t, db.Model(&campaign).Update("status", "paused").Error)

	_, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	assert.Error(t, err)
}

func TestGetReadyEnrollmentsHonorsDelay(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 60, 1440)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com",
		map[string]interface{}{"webinar": "kickoff"}, nil)
	require.NoError(t, err)

	// First email is due 60 minutes after enrollment, not before.
	ready, err := drip.GetReadyEnrollments(time.Now().Add(30 * time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = drip.GetReadyEnrollments(time.Now().Add(61 * time.Minute))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, enrolled.EnrollmentID, ready[0].Enrollment.ID)
	assert.Equal(t, 1, ready[0].NextEmail.SequenceOrder)
	assert.Equal(t, "ada@example.com", ready[0].Variables["recipient_email"])
	assert.Equal(t, "kickoff", ready[0].Variables["webinar"])

	// After the first send, the second delay counts from last_sent_at.
	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 1))

	ready, err = drip.GetReadyEnrollments(time.Now().Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = drip.GetReadyEnrollments(time.Now().Add(25 * time.Hour))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, 2, ready[0].NextEmail.SequenceOrder)
}

func TestAdvanceIsMonotonic(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 0, 0, 0)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)

	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 2))

	// A stale or duplicate ack never moves the pointer backwards.
	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 1))
	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 2))

	var enrollment models.DripEnrollment
	require.NoError(t, db.First(&enrollment, enrolled.EnrollmentID).Error)
	assert.Equal(t, 2, enrollment.CurrentSequenceOrder)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
}

func TestAdvanceCompletesAtLastStep(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 0, 0)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)

	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 1))
	require.NoError(t, drip.Advance(enrolled.EnrollmentID, 2))

	var enrollment models.DripEnrollment
	require.NoError(t, db.First(&enrollment, enrolled.EnrollmentID).Error)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)

	// Completed enrollments never come back from the ready query.
	ready, err := drip.GetReadyEnrollments(time.Now().Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestCancelStopsSends(t *testing.T) {
	drip, _, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 0)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)

	require.NoError(t, drip.Cancel(enrolled.EnrollmentID))

	ready, err := drip.GetReadyEnrollments(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready)

	// A second cancel is an error: the enrollment is no longer active.
	assert.Error(t, drip.Cancel(enrolled.EnrollmentID))
}

func TestSweepSendsAndAdvances(t *testing.T) {
	drip, rec, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 0, 60)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)

	result, err := drip.Sweep(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"email:welcome_webinar:ada@example.com"}, rec.callLog())

	var enrollment models.DripEnrollment
	require.NoError(t, db.First(&enrollment, enrolled.EnrollmentID).Error)
	assert.Equal(t, 1, enrollment.CurrentSequenceOrder)
	require.NotNil(t, enrollment.LastSentAt)

	// The second step is not due yet, so an immediate re-sweep is a no-op.
	result, err = drip.Sweep(time.Now().Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestSweepFailedSendDoesNotAdvance(t *testing.T) {
	drip, rec, db := newTestDrip(t)
	seedCampaign(t, db, models.EventWebinarRegistered, 0)

	enrolled, err := drip.Enroll(models.EventWebinarRegistered, "ada@example.com", nil, nil)
	require.NoError(t, err)

	rec.failSends = true
	result, err := drip.Sweep(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Sent)
	assert.Len(t, result.Errors, 1)

	var enrollment models.DripEnrollment
	require.NoError(t, db.First(&enrollment, enrolled.EnrollmentID).Error)
	assert.Zero(t, enrollment.CurrentSequenceOrder)

	// The next sweep retries the same step once the mailer recovers.
	rec.failSends = false
	result, err = drip.Sweep(time.Now().Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
}

// Full path from spec'd webinar scenario: event dispatch enrolls the
// registrant, time passes, the sweep delivers each step, and the enrollment
// completes.
func TestWebinarRegistrationEndToEnd(t *testing.T) {
	engine, rec := newTestEngine(t)
	db := engine.DB
	seedCampaign(t, db, models.EventWebinarRegistered, 60, 1440)

	require.NoError(t, db.Create(&models.AutomationRule{
		Name:         "webinar_welcome_drip",
		TriggerEvent: models.EventWebinarRegistered,
		Action: models.RuleAction{
			Type:     models.ActionEnrollInDrip,
			Campaign: models.EventWebinarRegistered,
		},
		IsActive: true,
	}).Error)

	_, dispatch := engine.EmitAndDispatch(models.EventWebinarRegistered, "user-9",
		map[string]interface{}{"email": "ada@example.com", "user_id": float64(9)})
	require.Empty(t, dispatch.Errors)
	require.Equal(t, 1, dispatch.ActionsExecuted)

	var enrollment models.DripEnrollment
	require.NoError(t, db.First(&enrollment).Error)
	assert.Equal(t, "ada@example.com", enrollment.RecipientEmail)
	require.NotNil(t, enrollment.UserID)
	assert.EqualValues(t, 9, *enrollment.UserID)

	// Step one after an hour.
	result, err := engine.Drip.Sweep(time.Now().Add(61 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	// Step two a day after step one; the enrollment then completes.
	result, err = engine.Drip.Sweep(time.Now().Add(26 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	require.NoError(t, db.First(&enrollment, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.Equal(t, []string{
		"email:welcome_webinar:ada@example.com",
		"email:welcome_webinar:ada@example.com",
	}, rec.callLog())
}
