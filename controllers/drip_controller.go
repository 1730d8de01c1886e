package controller

import (
	"log"

	"riseloop/automation"
	"riseloop/models"
	"riseloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// DripController is the operator CRUD surface for drip campaigns and their
// enrollments.
type DripController struct {
	DB     *gorm.DB
	Drip   *automation.DripEngine
	Logger *log.Logger
}

func NewDripController(db *gorm.DB, drip *automation.DripEngine, logger *log.Logger) *DripController {
	return &DripController{
		DB:     db,
		Drip:   drip,
		Logger: logger,
	}
}

type dripEmailInput struct {
	SequenceOrder   int    `json:"sequence_order" validate:"required,gt=0"`
	DelayMinutes    int    `json:"delay_minutes" validate:"min=0"`
	TemplateKey     string `json:"template_key" validate:"required"`
	SubjectTemplate string `json:"subject_template" validate:"required"`
}

// CreateCampaign creates a campaign together with its email sequence.
func (dc *DripController) CreateCampaign(c *fiber.Ctx) error {
	var input struct {
		Name         string           `json:"name" validate:"required"`
		TriggerEvent string           `json:"trigger_event" validate:"required"`
		Emails       []dripEmailInput `json:"emails" validate:"required,min=1,dive"`
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
	for _, email := range input.Emails {
		if !utils.HasTemplate(email.TemplateKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown template key " + email.TemplateKey,
			})
		}
	}

	// One active campaign per trigger, otherwise Enroll is ambiguous.
	var count int64
	dc.DB.Model(&models.DripCampaign{}).
		Where("trigger_event = ? AND status = ?", input.TriggerEvent, "active").
		Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An active campaign already exists for this trigger event",
		})
	}

	tx := dc.DB.Begin()

	campaign := models.DripCampaign{
		Name:         input.Name,
		TriggerEvent: input.TriggerEvent,
		Status:       "active",
	}
	if err := tx.Create(&campaign).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	for _, email := range input.Emails {
		if err := tx.Create(&models.DripEmail{
			CampaignID:      campaign.ID,
			SequenceOrder:   email.SequenceOrder,
			DelayMinutes:    email.DelayMinutes,
			TemplateKey:     email.TemplateKey,
			SubjectTemplate: email.SubjectTemplate,
		}).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create campaign email",
			})
		}
	}

	tx.Commit()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

// GetCampaigns lists campaigns with their email sequences.
func (dc *DripController) GetCampaigns(c *fiber.Ctx) error {
	var campaigns []models.DripCampaign
	if err := dc.DB.Preload("Emails", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence_order ASC")
	}).Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(campaigns)
}

// GetCampaign returns one campaign with its emails.
func (dc *DripController) GetCampaign(c *fiber.Ctx) error {
	var campaign models.DripCampaign
	if err := dc.DB.Preload("Emails", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence_order ASC")
	}).First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	return c.JSON(campaign)
}

// UpdateCampaign changes name or status (active/paused). Pausing stops the
// sweep from sending without touching enrollments.
func (dc *DripController) UpdateCampaign(c *fiber.Ctx) error {
	var campaign models.DripCampaign
	if err := dc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if input.Name != "" {
		campaign.Name = input.Name
	}
	if input.Status != "" {
		if input.Status != "active" && input.Status != "paused" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Status must be active or paused",
			})
		}
		campaign.Status = input.Status
	}

	if err := dc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign updated successfully",
		"campaign": campaign,
	})
}

// GetEnrollments lists a campaign's enrollments.
func (dc *DripController) GetEnrollments(c *fiber.Ctx) error {
	var campaign models.DripCampaign
	if err := dc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var enrollments []models.DripEnrollment
	if err := dc.DB.Where("campaign_id = ?", campaign.ID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}
	return c.JSON(enrollments)
}

// EnrollRecipient manually enrolls a recipient, the same path rule actions
// and the win-back sweep use.
func (dc *DripController) EnrollRecipient(c *fiber.Ctx) error {
	var input struct {
		TriggerEvent   string                 `json:"trigger_event" validate:"required"`
		RecipientEmail string                 `json:"recipient_email" validate:"required,email"`
		Metadata       map[string]interface{} `json:"metadata"`
		UserID         *uint                  `json:"user_id"`
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

	result, err := dc.Drip.Enroll(input.TriggerEvent, input.RecipientEmail, input.Metadata, input.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// CancelEnrollment terminates an enrollment.
func (dc *DripController) CancelEnrollment(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("enrollmentId"))
	if err := dc.Drip.Cancel(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Enrollment cancelled successfully",
	})
}
