package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp mounts the API routes on a new fiber app.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "crmflow"})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	Mount(app, handlers)

	return app
}

// Mount registers the API routes on router.
func Mount(router fiber.Router, handlers *APIHandlers) {
	w := router.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := router.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/stop", handlers.StopExecution)

	router.Post("/triggers/:type", handlers.FireTrigger)
	router.Post("/webhooks/:workflowId", handlers.Webhook)
	router.Get("/health", handlers.HealthCheck)
}
