package automation

import (
	"testing"

	"riseloop/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, e *Engine, name, subjectID string, payload map[string]interface{}) *models.AutomationEvent {
	t.Helper()
	event := e.Emit(name, subjectID, payload)
	require.NotNil(t, event)
	require.NotZero(t, event.ID)
	return event
}

func TestDispatchMatchesAndMarksHandled(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "milestone_week_one",
		TriggerEvent: models.EventJournalCompleted,
		Condition:    models.RuleCondition{Field: "streak", Op: models.OpGreaterOrEqual, Value: 7},
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 50, Reason: "week_one_streak"},
		Priority:     10,
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventJournalCompleted, "user-42",
		map[string]interface{}{"streak": float64(7)})
	result := engine.Dispatch(event)

	assert.Equal(t, 1, result.RulesMatched)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Empty(t, result.Errors)
	assert.False(t, result.Retry)
	assert.Equal(t, []string{"points:week_one_streak:50"}, rec.callLog())

	var stored models.AutomationEvent
	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.HandledAt)
}

func TestDispatchNoMatchStillMarksHandled(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "milestone_week_one",
		TriggerEvent: models.EventJournalCompleted,
		Condition:    models.RuleCondition{Field: "streak", Op: models.OpGreaterOrEqual, Value: 7},
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 50, Reason: "week_one_streak"},
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventJournalCompleted, "user-42",
		map[string]interface{}{"streak": float64(6)})
	result := engine.Dispatch(event)

	assert.Zero(t, result.RulesMatched)
	assert.Empty(t, rec.callLog())

	// No matching rule is a fully handled outcome, not one worth retrying.
	var stored models.AutomationEvent
	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.HandledAt)
}

func TestDispatchIgnoresInactiveAndOtherTriggers(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "disabled_rule",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 5, Reason: "signup"},
		IsActive:     false,
	}).Error)
	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "other_trigger",
		TriggerEvent: models.EventWebinarRegistered,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 5, Reason: "webinar"},
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventUserSignup, "user-1", nil)
	result := engine.Dispatch(event)

	assert.Zero(t, result.RulesMatched)
	assert.Empty(t, rec.callLog())
}

func TestDispatchPriorityOrder(t *testing.T) {
	engine, rec := newTestEngine(t)

	// Created low priority first so ordering cannot come from insertion order.
	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "second",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 5, Reason: "low"},
		Priority:     5,
		IsActive:     true,
	}).Error)
	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "first",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 10, Reason: "high"},
		Priority:     10,
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventUserSignup, "user-1", nil)
	result := engine.Dispatch(event)

	assert.Equal(t, 2, result.RulesMatched)
	assert.Equal(t, []string{"points:high:10", "points:low:5"}, rec.callLog())
}

func TestDispatchStopOnMatch(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "exclusive_welcome",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 10, Reason: "welcome", StopOnMatch: true},
		Priority:     10,
		IsActive:     true,
	}).Error)
	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "never_reached",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 1, Reason: "extra"},
		Priority:     5,
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventUserSignup, "user-1", nil)
	result := engine.Dispatch(event)

	assert.Equal(t, 1, result.RulesMatched)
	assert.Equal(t, []string{"points:welcome:10"}, rec.callLog())

	var stored models.AutomationEvent
	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.HandledAt)
}

func TestDispatchActionFailureLeavesEventOpen(t *testing.T) {
	engine, rec := newTestEngine(t)
	rec.failPoints = true

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "award_on_signup",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 10, Reason: "welcome"},
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventUserSignup, "user-1", nil)
	result := engine.Dispatch(event)

	assert.True(t, result.Retry)
	assert.Len(t, result.Errors, 1)
	assert.Zero(t, result.ActionsExecuted)

	var stored models.AutomationEvent
	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.Nil(t, stored.HandledAt, "failed dispatch must leave the event for the catch-up processor")

	// Once the collaborator recovers, the catch-up sweep closes the event.
	rec.failPoints = false
	processed, err := engine.ProcessUnhandledEvents(0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed.Processed)
	assert.Equal(t, 1, processed.Succeeded)

	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.HandledAt)
	assert.Equal(t, []string{"points:welcome:10"}, rec.callLog())
}

func TestDispatchMalformedConditionIsSkippedNotRetried(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "broken_rule",
		TriggerEvent: models.EventUserSignup,
		Condition:    models.RuleCondition{Field: "plan", Op: "~=", Value: "pro"},
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 1, Reason: "broken"},
		Priority:     10,
		IsActive:     true,
	}).Error)
	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "healthy_rule",
		TriggerEvent: models.EventUserSignup,
		Action:       models.RuleAction{Type: models.ActionAwardPoints, Points: 10, Reason: "welcome"},
		Priority:     5,
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventUserSignup, "user-1",
		map[string]interface{}{"plan": "pro"})
	result := engine.Dispatch(event)

	// The broken rule is reported but does not block the healthy one, and
	// the event closes: redelivery cannot fix configuration.
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken_rule")
	assert.False(t, result.Retry)
	assert.Equal(t, []string{"points:welcome:10"}, rec.callLog())

	var stored models.AutomationEvent
	require.NoError(t, engine.DB.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.HandledAt)
}

func TestDispatchSendEmailResolvesRecipient(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "welcome_mail",
		TriggerEvent: models.EventUserSignup,
		Action: models.RuleAction{
			Type:        models.ActionSendEmail,
			TemplateKey: "welcome_day_0",
			Subject:     "Welcome to your 45 days",
		},
		IsActive: true,
	}).Error)

	// Payload email wins over subject id.
	event := seedEvent(t, engine, models.EventUserSignup, "user-1",
		map[string]interface{}{"email": "ada@example.com"})
	engine.Dispatch(event)

	// Email-shaped subject id is the fallback.
	event = seedEvent(t, engine, models.EventUserSignup, "bob@example.com", nil)
	engine.Dispatch(event)

	assert.Equal(t, []string{
		"email:welcome_day_0:ada@example.com",
		"email:welcome_day_0:bob@example.com",
	}, rec.callLog())
}

func TestDispatchGrantEntitlement(t *testing.T) {
	engine, rec := newTestEngine(t)

	require.NoError(t, engine.DB.Create(&models.AutomationRule{
		Name:         "unlock_bonus_content",
		TriggerEvent: models.EventJournalCompleted,
		Condition:    models.RuleCondition{Field: "day", Op: models.OpGreaterOrEqual, Value: 45},
		Action:       models.RuleAction{Type: models.ActionGrantEntitlement, EntitlementType: "alumni_access"},
		IsActive:     true,
	}).Error)

	event := seedEvent(t, engine, models.EventJournalCompleted, "user-7",
		map[string]interface{}{"day": float64(45)})
	engine.Dispatch(event)

	assert.Equal(t, []string{"entitlement:alumni_access:user-7"}, rec.callLog())
}
