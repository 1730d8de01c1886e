package main

import (
	"context"
	"log"
	"os"
	"time"

	"riseloop/automation"
	"riseloop/config"
	"riseloop/middleware"
	"riseloop/routes"
	"riseloop/utils"
	"riseloop/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "RISELOOP: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry if a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS and panic recovery middleware
	app.Use(middleware.CORS())
	app.Use(recover.New())

	// Composition root: wire the engine's collaborators once
	mailer := utils.NewMailer(utils.MailerConfig{
		Host:      config.AppConfig.SMTPHost,
		Port:      config.AppConfig.SMTPPort,
		Username:  config.AppConfig.SMTPUsername,
		Password:  config.AppConfig.SMTPPassword,
		FromEmail: config.AppConfig.FromEmail,
		FromName:  config.AppConfig.FromName,
	})
	drip := automation.NewDripEngine(config.DB, mailer)
	engine := automation.NewEngine(
		config.DB,
		mailer,
		automation.NewGormEntitlementStore(config.DB),
		automation.NewGormPointsService(config.DB),
		drip,
	)

	// In-process sweeps for deployments without an external cron
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if config.AppConfig.EnableWorkers {
		dripWorker := worker.NewDripWorker(
			drip,
			time.Duration(config.AppConfig.DripSweepMinutes)*time.Minute,
			log.New(os.Stdout, "DRIP: ", log.LstdFlags),
		)
		go dripWorker.Start(ctx)

		backupWorker := worker.NewBackupWorker(
			engine,
			time.Duration(config.AppConfig.ProcessorMinutes)*time.Minute,
			time.Duration(config.AppConfig.DispatchGraceMinutes)*time.Minute,
			log.New(os.Stdout, "BACKUP: ", log.LstdFlags),
		)
		go backupWorker.Start(ctx)
	}

	// Setup routes
	routes.SetupRoutes(app, config.DB, engine, drip, mailer)

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
