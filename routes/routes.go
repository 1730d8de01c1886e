package routes

import (
	"log"
	"os"

	"riseloop/automation"
	controller "riseloop/controllers"
	"riseloop/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// SetupRoutes wires the HTTP surface: bearer-protected cron endpoints,
// service-to-service event ingestion, and JWT-protected operator CRUD.
func SetupRoutes(app *fiber.App, db *gorm.DB, engine *automation.Engine, drip *automation.DripEngine, mailer automation.EmailSender) {
	automationController := controller.NewAutomationController(db, engine, drip, mailer, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))
	eventController := controller.NewEventController(db, engine, log.New(os.Stdout, "EVENT: ", log.LstdFlags))
	ruleController := controller.NewRuleController(db, log.New(os.Stdout, "RULE: ", log.LstdFlags))
	dripController := controller.NewDripController(db, drip, log.New(os.Stdout, "DRIP: ", log.LstdFlags))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Scheduled job endpoints hit by the external cron
	cron := app.Group("", middleware.CronProtected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	cron.Get("/automation-processor", automationController.ProcessEvents)
	cron.Get("/email-drips", automationController.RunDrips)
	cron.Get("/win-back", automationController.RunWinBack)
	cron.Get("/streak-reminders", automationController.SendStreakReminders)

	// Event ingestion for platform services (same shared secret as cron).
	// The guard sits on the route, not the group, so the JWT-protected event
	// reads below share the /api/v1/events prefix.
	app.Post("/api/v1/events", middleware.CronProtected(), middleware.EmitRateLimiter(), eventController.EmitEvent)

	// Operator endpoints
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	events := api.Group("/events")
	events.Get("/unhandled", eventController.GetUnhandledEvents)
	events.Get("/:id", eventController.GetEvent)
	events.Post("/:id/replay", eventController.ReplayEvent)

	rules := api.Group("/rules")
	rules.Post("/", ruleController.CreateRule)
	rules.Get("/", ruleController.GetRules)
	rules.Get("/:id", ruleController.GetRule)
	rules.Put("/:id", ruleController.UpdateRule)
	rules.Delete("/:id", ruleController.DeleteRule)

	campaigns := api.Group("/drip-campaigns")
	campaigns.Post("/", dripController.CreateCampaign)
	campaigns.Get("/", dripController.GetCampaigns)
	campaigns.Get("/:id", dripController.GetCampaign)
	campaigns.Put("/:id", dripController.UpdateCampaign)
	campaigns.Get("/:id/enrollments", dripController.GetEnrollments)
	campaigns.Post("/enrollments", dripController.EnrollRecipient)
	campaigns.Delete("/enrollments/:enrollmentId", dripController.CancelEnrollment)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("Routes initialized successfully")
}
