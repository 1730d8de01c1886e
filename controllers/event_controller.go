package controller

import (
	"log"

	"riseloop/automation"
	"riseloop/models"
	"riseloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// EventController exposes event ingestion over HTTP for platform services
// that cannot call the engine in-process, plus debugging reads and manual
// replay for operators.
type EventController struct {
	DB     *gorm.DB
	Engine *automation.Engine
	Logger *log.Logger
}

func NewEventController(db *gorm.DB, engine *automation.Engine, logger *log.Logger) *EventController {
	return &EventController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

// EmitEvent persists an event and dispatches it inline, mirroring the
// in-process emit→dispatch flow.
func (ec *EventController) EmitEvent(c *fiber.Ctx) error {
	var input struct {
		EventName string                 `json:"event_name" validate:"required"`
		SubjectID string                 `json:"subject_id" validate:"required"`
		Payload   map[string]interface{} `json:"payload"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	event, result := ec.Engine.EmitAndDispatch(input.EventName, input.SubjectID, input.Payload)
	if event == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to persist event",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"event_id": event.ID,
		"dispatch": result,
	})
}

// GetUnhandledEvents lists events still waiting for a clean dispatch.
func (ec *EventController) GetUnhandledEvents(c *fiber.Ctx) error {
	var events []models.AutomationEvent
	if err := ec.DB.Where("handled_at IS NULL").
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch unhandled events",
		})
	}
	return c.JSON(events)
}

// GetEvent fetches a single event by id, for debugging.
func (ec *EventController) GetEvent(c *fiber.Ctx) error {
	var event models.AutomationEvent
	if err := ec.DB.First(&event, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Event not found",
		})
	}
	return c.JSON(event)
}

// ReplayEvent re-runs dispatch for one event regardless of its handled
// state. Safe because every action is idempotent.
func (ec *EventController) ReplayEvent(c *fiber.Ctx) error {
	var event models.AutomationEvent
	if err := ec.DB.First(&event, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Event not found",
		})
	}

	ec.Logger.Printf("Replaying event %d (%s)", event.ID, event.EventName)
	result := ec.Engine.Dispatch(&event)

	return c.JSON(fiber.Map{
		"event_id": event.ID,
		"dispatch": result,
	})
}
