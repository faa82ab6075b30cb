package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/classboard/classboard-api/internal/config"
	"github.com/classboard/classboard-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	AnswerKeyHandler  *handler.AnswerKeyHandler
	EvaluationHandler *handler.EvaluationHandler
	PostHandler       *handler.PostHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Classroom (assignments, answer keys, per-assignment grading reads)
	if deps.AssignmentHandler != nil || deps.AnswerKeyHandler != nil || deps.EvaluationHandler != nil {
		assignments := app.Group("/api/v2/assignments", jwtMiddleware)
		if deps.AssignmentHandler != nil {
			deps.AssignmentHandler.Register(assignments)
		}
		if deps.AnswerKeyHandler != nil {
			deps.AnswerKeyHandler.Register(assignments)
		}
		if deps.EvaluationHandler != nil {
			deps.EvaluationHandler.RegisterAssignmentRoutes(assignments)
		}
	}

	if deps.SubmissionHandler != nil {
		submissions := app.Group("/api/v2/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	// Grading pipeline
	if deps.EvaluationHandler != nil {
		evaluations := app.Group("/api/v2/evaluations", jwtMiddleware)
		deps.EvaluationHandler.Register(evaluations)
	}

	// Classroom feed
	if deps.PostHandler != nil {
		posts := app.Group("/api/v2/posts", jwtMiddleware)
		deps.PostHandler.Register(posts)
	}
}
