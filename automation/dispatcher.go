package automation

import (
	"fmt"
	"strings"
	"time"

	"riseloop/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine matches events against the rule catalog and executes the resulting
// actions. All collaborators are injected; the engine keeps no state of its
// own beyond what lives in the database.
type Engine struct {
	DB           *gorm.DB
	Mailer       EmailSender
	Entitlements EntitlementStore
	Points       PointsService
	Drip         *DripEngine
	Logger       *logrus.Entry
}

func NewEngine(db *gorm.DB, mailer EmailSender, entitlements EntitlementStore, points PointsService, drip *DripEngine) *Engine {
	return &Engine{
		DB:           db,
		Mailer:       mailer,
		Entitlements: entitlements,
		Points:       points,
		Drip:         drip,
		Logger:       logrus.WithField("component", "dispatcher"),
	}
}

// DispatchResult reports what a single dispatch did. Errors carries every
// per-rule problem in-band; Retry marks whether the event was left unhandled
// for the catch-up processor.
type DispatchResult struct {
	RulesMatched    int      `json:"rules_matched"`
	ActionsExecuted int      `json:"actions_executed"`
	Errors          []string `json:"errors"`
	Retry           bool     `json:"-"`
}

// Dispatch evaluates every active rule for the event's trigger in descending
// priority order and executes the matching actions. The event is marked
// handled only when no action failed: a partially failed dispatch stays open
// so the catch-up processor redelivers it (at-least-once; every action is
// idempotent).
//
// A malformed rule (bad condition, unknown action) is logged, reported
// in-band, and skipped without holding the event open — redelivery cannot
// fix configuration.
func (e *Engine) Dispatch(event *models.AutomationEvent) DispatchResult {
	result := DispatchResult{Errors: []string{}}

	var rules []models.AutomationRule
	if err := e.DB.Where("trigger_event = ? AND is_active = ?", event.EventName, true).
		Order("priority DESC").
		Find(&rules).Error; err != nil {
		e.Logger.WithError(err).WithField("event_id", event.ID).Error("failed to load rules")
		result.Errors = append(result.Errors, fmt.Sprintf("load rules: %v", err))
		result.Retry = true
		return result
	}

	actionFailed := false
	for _, rule := range rules {
		matched, err := EvaluateCondition(rule.Condition, event.Payload)
		if err != nil {
			e.Logger.WithError(err).WithFields(logrus.Fields{
				"event_id": event.ID,
				"rule":     rule.Name,
			}).Warn("skipping rule with malformed condition")
			result.Errors = append(result.Errors, fmt.Sprintf("rule %q: %v", rule.Name, err))
			continue
		}
		if !matched {
			continue
		}

		result.RulesMatched++
		if err := e.executeAction(event, rule); err != nil {
			e.Logger.WithError(err).WithFields(logrus.Fields{
				"event_id": event.ID,
				"rule":     rule.Name,
				"action":   rule.Action.Type,
			}).Error("action failed")
			result.Errors = append(result.Errors, fmt.Sprintf("rule %q: %v", rule.Name, err))
			actionFailed = true
			continue
		}
		result.ActionsExecuted++

		if rule.Action.StopOnMatch {
			break
		}
	}

	if actionFailed {
		result.Retry = true
		return result
	}

	if err := e.DB.Model(event).Update("handled_at", time.Now()).Error; err != nil {
		e.Logger.WithError(err).WithField("event_id", event.ID).Error("failed to mark event handled")
		result.Errors = append(result.Errors, fmt.Sprintf("mark handled: %v", err))
		result.Retry = true
	}
	return result
}

func (e *Engine) executeAction(event *models.AutomationEvent, rule models.AutomationRule) error {
	switch rule.Action.Type {
	case models.ActionGrantEntitlement:
		return e.Entitlements.Grant(event.SubjectID, rule.Action.EntitlementType)

	case models.ActionSendEmail:
		recipient, err := recipientFor(event)
		if err != nil {
			return err
		}
		return e.Mailer.Send(recipient, rule.Action.Subject, rule.Action.TemplateKey, event.Payload)

	case models.ActionEnrollInDrip:
		recipient, err := recipientFor(event)
		if err != nil {
			return err
		}
		_, err = e.Drip.Enroll(rule.Action.Campaign, recipient, event.Payload, userIDFrom(event.Payload))
		return err

	case models.ActionAwardPoints:
		return e.Points.Award(event.SubjectID, rule.Action.Points, rule.Action.Reason, event.ID)

	default:
		return fmt.Errorf("unknown action type %q", rule.Action.Type)
	}
}

// recipientFor resolves the email address an action should target: an
// explicit payload email wins, otherwise an email-shaped subject id.
func recipientFor(event *models.AutomationEvent) (string, error) {
	if email, ok := event.Payload["email"].(string); ok && email != "" {
		return email, nil
	}
	if strings.Contains(event.SubjectID, "@") {
		return event.SubjectID, nil
	}
	return "", fmt.Errorf("no recipient email on event %d", event.ID)
}

func userIDFrom(payload map[string]interface{}) *uint {
	if raw, ok := payload["user_id"]; ok {
		if f, err := toFloat(raw); err == nil && f > 0 {
			id := uint(f)
			return &id
		}
	}
	return nil
}
