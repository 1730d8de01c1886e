package controller

import (
	"log"

	"riseloop/models"
	"riseloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RuleController is the operator CRUD surface for the rule catalog.
// Conditions and actions are validated here, at save time, so the
// dispatcher never loads a malformed rule it could have rejected earlier.
type RuleController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewRuleController(db *gorm.DB, logger *log.Logger) *RuleController {
	return &RuleController{
		DB:     db,
		Logger: logger,
	}
}

type ruleInput struct {
	Name         string               `json:"name" validate:"required"`
	TriggerEvent string               `json:"trigger_event" validate:"required"`
	Condition    models.RuleCondition `json:"condition"`
	Action       models.RuleAction    `json:"action"`
	Priority     int                  `json:"priority"`
	IsActive     *bool                `json:"is_active"`
}

func (ri ruleInput) validate() error {
	if err := utils.ValidateStruct(ri); err != nil {
		return err
	}
	if err := ri.Condition.Validate(); err != nil {
		return err
	}
	if err := ri.Action.Validate(); err != nil {
		return err
	}
	if ri.Action.Type == models.ActionSendEmail && !utils.HasTemplate(ri.Action.TemplateKey) {
		return &templateError{key: ri.Action.TemplateKey}
	}
	return nil
}

type templateError struct{ key string }

func (e *templateError) Error() string {
	return "unknown template key " + e.key
}

// CreateRule adds a rule to the catalog.
func (rc *RuleController) CreateRule(c *fiber.Ctx) error {
	var input ruleInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := input.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	rule := models.AutomationRule{
		Name:         input.Name,
		TriggerEvent: input.TriggerEvent,
		Condition:    input.Condition,
		Action:       input.Action,
		Priority:     input.Priority,
		IsActive:     true,
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := rc.DB.Create(&rule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create rule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Rule created successfully",
		"rule":    rule,
	})
}

// GetRules returns the catalog, optionally filtered by trigger event.
func (rc *RuleController) GetRules(c *fiber.Ctx) error {
	query := rc.DB.Order("trigger_event, priority DESC")
	if trigger := c.Query("trigger_event"); trigger != "" {
		query = query.Where("trigger_event = ?", trigger)
	}

	var rules []models.AutomationRule
	if err := query.Find(&rules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch rules",
		})
	}
	return c.JSON(rules)
}

// GetRule returns a single rule.
func (rc *RuleController) GetRule(c *fiber.Ctx) error {
	var rule models.AutomationRule
	if err := rc.DB.First(&rule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Rule not found",
		})
	}
	return c.JSON(rule)
}

// UpdateRule replaces a rule's definition.
func (rc *RuleController) UpdateRule(c *fiber.Ctx) error {
	var rule models.AutomationRule
	if err := rc.DB.First(&rule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Rule not found",
		})
	}

	var input ruleInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := input.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	rule.Name = input.Name
	rule.TriggerEvent = input.TriggerEvent
	rule.Condition = input.Condition
	rule.Action = input.Action
	rule.Priority = input.Priority
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := rc.DB.Save(&rule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update rule",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Rule updated successfully",
		"rule":    rule,
	})
}

// DeleteRule removes a rule from the catalog.
func (rc *RuleController) DeleteRule(c *fiber.Ctx) error {
	result := rc.DB.Delete(&models.AutomationRule{}, c.Params("id"))
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete rule",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Rule not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Rule deleted successfully",
	})
}
