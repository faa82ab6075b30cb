package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classboard/classboard-api/internal/config"
	"github.com/classboard/classboard-api/internal/database"
	"github.com/classboard/classboard-api/internal/handler"
	"github.com/classboard/classboard-api/internal/middleware"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/observability"
	"github.com/classboard/classboard-api/internal/repository"
	"github.com/classboard/classboard-api/internal/router"
	"github.com/classboard/classboard-api/internal/service"
	"github.com/classboard/classboard-api/pkg/ai"
	cloud "github.com/classboard/classboard-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Assignment{},
		&models.Submission{},
		&models.AnswerKey{},
		&models.Post{},
		&models.EvaluationRecord{},
		&models.EvaluationBatch{},
		&models.BatchFailure{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	var grader ai.Grader
	if cfg.OpenAIAPIKey != "" {
		openAIGrader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.GradingModel,
			Timeout: cfg.GradingTimeout,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create grader: %v", err)
		}
		grader = openAIGrader
	} else {
		logger.Warn().Msg("no OpenAI key configured, grading endpoints disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	answerKeyRepo := repository.NewAnswerKeyRepository(db)
	postRepo := repository.NewPostRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	batchRepo := repository.NewBatchRepository(db)

	events := service.NewBatchEvents(natsConn, "", logger)

	assignmentService := service.NewAssignmentService(assignmentRepo, validate, uploader, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, studentRepo, validate, uploader, logger)
	answerKeyService := service.NewAnswerKeyService(answerKeyRepo, assignmentRepo, validate, uploader, logger)
	postService := service.NewPostService(postRepo, validate, uploader, logger)
	statisticsService := service.NewStatisticsService(assignmentRepo, submissionRepo, evaluationRepo, redisClient, cfg.SummaryCacheTTL, logger)
	evaluationService := service.NewEvaluationService(
		assignmentRepo,
		submissionRepo,
		answerKeyRepo,
		evaluationRepo,
		batchRepo,
		grader,
		events,
		statisticsService,
		validate,
		logger,
		service.EvaluationConfig{Concurrency: cfg.GradingConcurrency},
	)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	answerKeyHandler := handler.NewAnswerKeyHandler(answerKeyService, logger)
	postHandler := handler.NewPostHandler(postService, logger)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, statisticsService, events, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		AnswerKeyHandler:  answerKeyHandler,
		EvaluationHandler: evaluationHandler,
		PostHandler:       postHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	eventsCtx, cancelEvents := context.WithCancel(context.Background())
	defer cancelEvents()
	go events.Start(eventsCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
