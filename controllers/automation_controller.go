package controller

import (
	"log"
	"time"

	"riseloop/automation"
	"riseloop/config"
	"riseloop/models"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AutomationController serves the scheduled-job endpoints the external cron
// hits. Partial failures are reported in-band with HTTP 200; only a fatal
// error (the work set cannot be fetched at all) returns 500.
type AutomationController struct {
	DB     *gorm.DB
	Engine *automation.Engine
	Drip   *automation.DripEngine
	Mailer automation.EmailSender
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, engine *automation.Engine, drip *automation.DripEngine, mailer automation.EmailSender, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Engine: engine,
		Drip:   drip,
		Mailer: mailer,
		Logger: logger,
	}
}

// ProcessEvents re-dispatches events the real-time path left unhandled.
func (ac *AutomationController) ProcessEvents(c *fiber.Ctx) error {
	grace := time.Duration(config.AppConfig.DispatchGraceMinutes) * time.Minute

	result, err := ac.Engine.ProcessUnhandledEvents(grace)
	if err != nil {
		ac.Logger.Printf("Catch-up sweep failed: %v", err)
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"errors":    result.Errors,
		"timestamp": time.Now(),
	})
}

// RunDrips sends every due drip email.
func (ac *AutomationController) RunDrips(c *fiber.Ctx) error {
	result, err := ac.Drip.Sweep(time.Now())
	if err != nil {
		ac.Logger.Printf("Drip sweep failed: %v", err)
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": result.Processed,
		"sent":      result.Sent,
		"errors":    result.Errors,
		"timestamp": time.Now(),
	})
}

// RunWinBack enrolls members who went quiet into the win-back campaign.
// Enrollment is idempotent, so re-detecting the same member on the next
// sweep is harmless.
func (ac *AutomationController) RunWinBack(c *fiber.Ctx) error {
	cutoff := time.Now().AddDate(0, 0, -config.AppConfig.WinBackInactiveDays)

	var members []models.Member
	if err := ac.DB.Where("is_unsubscribed = ?", false).
		Where("last_activity_at IS NOT NULL AND last_activity_at < ?", cutoff).
		Find(&members).Error; err != nil {
		ac.Logger.Printf("Win-back query failed: %v", err)
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
	}

	enrolled := 0
	errors := []string{}
	for _, member := range members {
		metadata := map[string]interface{}{"name": member.Name}
		result, err := ac.Drip.Enroll(models.EventWinBackInactive, member.Email, metadata, &member.UserID)
		if err != nil {
			errors = append(errors, member.Email+": "+err.Error())
			continue
		}
		if !result.AlreadyEnrolled {
			enrolled++
		}
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": len(members),
		"enrolled":  enrolled,
		"errors":    errors,
		"timestamp": time.Now(),
	})
}

// SendStreakReminders emails members with an active streak who haven't
// journaled today. This sweep deliberately bypasses the rule engine: it is
// driven by the absence of an event, not by one.
func (ac *AutomationController) SendStreakReminders(c *fiber.Ctx) error {
	startOfDay := time.Now().Truncate(24 * time.Hour)

	var members []models.Member
	if err := ac.DB.Where("is_unsubscribed = ?", false).
		Where("current_streak > 0").
		Where("last_activity_at IS NOT NULL AND last_activity_at < ?", startOfDay).
		Find(&members).Error; err != nil {
		ac.Logger.Printf("Streak reminder query failed: %v", err)
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
	}

	sent := 0
	errors := []string{}
	for _, member := range members {
		data := map[string]interface{}{
			"name":   member.Name,
			"streak": member.CurrentStreak,
		}
		if err := ac.Mailer.Send(member.Email, "Don't break your streak", "streak_reminder", data); err != nil {
			errors = append(errors, member.Email+": "+err.Error())
			continue
		}
		sent++
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": len(members),
		"sent":      sent,
		"errors":    errors,
		"timestamp": time.Now(),
	})
}
