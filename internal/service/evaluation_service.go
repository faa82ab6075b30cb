package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/observability"
	"github.com/classboard/classboard-api/internal/repository"
	"github.com/classboard/classboard-api/pkg/ai"
)

// ErrGraderUnavailable indicates no grading model is configured.
var ErrGraderUnavailable = errors.New("grader unavailable")

// ErrBatchNotFound indicates the batch could not be found.
var ErrBatchNotFound = errors.New("batch not found")

// ErrBatchTerminal indicates the batch already reached a final status.
var ErrBatchTerminal = errors.New("batch already terminal")

// ErrSubmissionMismatch indicates a submission belongs to another assignment.
var ErrSubmissionMismatch = errors.New("submission does not belong to assignment")

// ErrDuplicateSubmission indicates the batch request repeats a submission id.
var ErrDuplicateSubmission = errors.New("duplicate submission id in batch")

// ErrRecordNotPersisted indicates a grading outcome could not be saved.
var ErrRecordNotPersisted = errors.New("evaluation record could not be persisted")

// StatsInvalidator drops cached statistics after new records land.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, assignmentID uint)
}

// EvaluationConfig holds orchestration knobs.
type EvaluationConfig struct {
	// Concurrency bounds the number of simultaneous grading calls per batch,
	// keeping the module inside the scoring backend's rate limits.
	Concurrency int
}

// EvaluationService grades submissions against answer keys, individually or
// in batches, and exposes the results. Batches are bulkheads: each item
// fails independently, progress is monotonic, and the batch always reaches a
// terminal status.
type EvaluationService interface {
	EvaluateSingle(ctx context.Context, assignmentID, submissionID uint) (dto.EvaluationResponse, error)
	StartBatch(ctx context.Context, payload dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error)
	RunBatch(ctx context.Context, payload dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error)
	GetBatchStatus(ctx context.Context, batchID string) (dto.BatchStatusResponse, error)
	CancelBatch(ctx context.Context, batchID string) error
	GetEvaluations(ctx context.Context, assignmentID uint) ([]dto.EvaluationResponse, error)
}

type evaluationService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	answerKeys  repository.AnswerKeyRepository
	evaluations repository.EvaluationRepository
	batches     repository.BatchRepository
	grader      ai.Grader
	events      *BatchEvents
	stats       StatsInvalidator
	validator   *validator.Validate
	logger      zerolog.Logger
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEvaluationService constructs the orchestrator. events and stats may be
// nil; grader may be nil, in which case evaluation operations fail with
// ErrGraderUnavailable.
func NewEvaluationService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	answerKeys repository.AnswerKeyRepository,
	evaluations repository.EvaluationRepository,
	batches repository.BatchRepository,
	grader ai.Grader,
	events *BatchEvents,
	stats StatsInvalidator,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg EvaluationConfig,
) EvaluationService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &evaluationService{
		assignments: assignments,
		submissions: submissions,
		answerKeys:  answerKeys,
		evaluations: evaluations,
		batches:     batches,
		grader:      grader,
		events:      events,
		stats:       stats,
		validator:   validate,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		concurrency: cfg.Concurrency,
		now:         time.Now,
		cancels:     map[string]context.CancelFunc{},
	}
}

func (s *evaluationService) EvaluateSingle(ctx context.Context, assignmentID, submissionID uint) (dto.EvaluationResponse, error) {
	tracer := otel.Tracer("github.com/classboard/classboard-api/internal/service/evaluation")
	ctx, span := tracer.Start(ctx, "evaluation.single")
	span.SetAttributes(
		attribute.Int64("evaluation.assignment_id", int64(assignmentID)),
		attribute.Int64("evaluation.submission_id", int64(submissionID)),
	)
	defer span.End()

	if s.grader == nil {
		return dto.EvaluationResponse{}, ErrGraderUnavailable
	}

	assignment, key, err := s.loadGradingContext(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_context_failed")
		return dto.EvaluationResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	if submission.AssignmentID != assignment.ID {
		return dto.EvaluationResponse{}, ErrSubmissionMismatch
	}

	result, err := s.grader.Grade(ctx, gradeInput(assignment, key, submission))
	if err != nil {
		observability.EvaluationOutcomes().WithLabelValues("single", "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("single evaluation failed")
		return dto.EvaluationResponse{}, err
	}

	record := buildRecord(assignment, submission, result, models.EvaluationTypeSingle, nil)
	if err := s.evaluations.Create(ctx, &record); err != nil {
		observability.EvaluationOutcomes().WithLabelValues("single", "persistence_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence_failed")
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to persist evaluation record")
		return dto.EvaluationResponse{}, fmt.Errorf("%w: %v", ErrRecordNotPersisted, err)
	}

	observability.EvaluationOutcomes().WithLabelValues("single", "graded").Inc()
	s.invalidateStats(ctx, assignment.ID)

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("percentage", record.Percentage).
		Str("grade", record.Grade).
		Msg("submission evaluated")

	return dto.NewEvaluationResponse(record), nil
}

// StartBatch creates the batch record and returns immediately; grading runs
// in the background. Callers poll GetBatchStatus or subscribe to events.
func (s *evaluationService) StartBatch(ctx context.Context, payload dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error) {
	batch, job, err := s.prepareBatch(ctx, payload)
	if err != nil {
		return dto.BatchStatusResponse{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.registerCancel(batch.ID, cancel)

	go s.executeBatch(runCtx, batch, job)

	return dto.NewBatchStatusResponse(batch, nil), nil
}

// RunBatch behaves like StartBatch but blocks until the batch is terminal.
func (s *evaluationService) RunBatch(ctx context.Context, payload dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error) {
	batch, job, err := s.prepareBatch(ctx, payload)
	if err != nil {
		return dto.BatchStatusResponse{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.registerCancel(batch.ID, cancel)

	s.executeBatch(runCtx, batch, job)

	return s.GetBatchStatus(ctx, batch.ID)
}

func (s *evaluationService) GetBatchStatus(ctx context.Context, batchID string) (dto.BatchStatusResponse, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BatchStatusResponse{}, ErrBatchNotFound
		}
		return dto.BatchStatusResponse{}, err
	}

	failures, err := s.batches.ListFailures(ctx, batchID)
	if err != nil {
		return dto.BatchStatusResponse{}, err
	}

	return dto.NewBatchStatusResponse(batch, failures), nil
}

// CancelBatch stops dispatching new items. In-flight grading calls complete
// and persist; remaining items are recorded as cancelled failures, after which
// the batch terminates as completed_with_errors.
func (s *evaluationService) CancelBatch(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBatchNotFound
		}
		return err
	}

	if batch.Terminal() {
		return ErrBatchTerminal
	}

	s.mu.Lock()
	cancel, ok := s.cancels[batchID]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.logger.Info().Str("batch_id", batchID).Msg("batch cancellation requested")

	return nil
}

// GetEvaluations returns the current record per submission: history is
// retained, the newest record wins.
func (s *evaluationService) GetEvaluations(ctx context.Context, assignmentID uint) ([]dto.EvaluationResponse, error) {
	records, err := s.evaluations.ListCurrentByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewEvaluationResponseSlice(records), nil
}

// batchJob carries everything a batch run needs so workers never re-query.
type batchJob struct {
	assignment  models.Assignment
	key         models.AnswerKey
	submissions []models.Submission
}

func (s *evaluationService) prepareBatch(ctx context.Context, payload dto.BatchEvaluationRequest) (models.EvaluationBatch, batchJob, error) {
	if s.grader == nil {
		return models.EvaluationBatch{}, batchJob{}, ErrGraderUnavailable
	}

	if err := s.validator.Struct(payload); err != nil {
		return models.EvaluationBatch{}, batchJob{}, err
	}

	seen := map[uint]struct{}{}
	for _, id := range payload.SubmissionIDs {
		if _, dup := seen[id]; dup {
			return models.EvaluationBatch{}, batchJob{}, ErrDuplicateSubmission
		}
		seen[id] = struct{}{}
	}

	assignment, key, err := s.loadGradingContext(ctx, payload.AssignmentID)
	if err != nil {
		return models.EvaluationBatch{}, batchJob{}, err
	}

	submissions, err := s.submissions.GetByIDs(ctx, payload.SubmissionIDs)
	if err != nil {
		return models.EvaluationBatch{}, batchJob{}, err
	}
	if len(submissions) != len(payload.SubmissionIDs) {
		return models.EvaluationBatch{}, batchJob{}, ErrSubmissionNotFound
	}
	for _, submission := range submissions {
		if submission.AssignmentID != assignment.ID {
			return models.EvaluationBatch{}, batchJob{}, ErrSubmissionMismatch
		}
	}

	batch := models.EvaluationBatch{
		ID:           uuid.NewString(),
		AssignmentID: assignment.ID,
		RequestedBy:  payload.RequestedBy,
		TotalCount:   len(submissions),
		Status:       models.BatchStatusPending,
	}
	if err := s.batches.Create(ctx, &batch); err != nil {
		return models.EvaluationBatch{}, batchJob{}, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Uint("assignment_id", assignment.ID).
		Int("total", batch.TotalCount).
		Msg("batch created")

	return batch, batchJob{assignment: assignment, key: key, submissions: submissions}, nil
}

// executeBatch fans grading work out under the concurrency bound and drives
// the batch to a terminal status. cancelCtx only gates dispatch: grading calls
// run on a context that survives cancellation so in-flight work still lands.
func (s *evaluationService) executeBatch(cancelCtx context.Context, batch models.EvaluationBatch, job batchJob) {
	baseCtx := context.WithoutCancel(cancelCtx)

	tracer := otel.Tracer("github.com/classboard/classboard-api/internal/service/evaluation")
	baseCtx, span := tracer.Start(baseCtx, "evaluation.batch")
	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.total", batch.TotalCount),
	)
	defer span.End()

	defer s.dropCancel(batch.ID)

	observability.BatchesInFlight().Inc()
	defer observability.BatchesInFlight().Dec()

	if err := s.batches.MarkProcessing(baseCtx, batch.ID); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to mark batch processing")
		span.RecordError(err)
	}
	s.publishProgress(baseCtx, batch.ID, batch.AssignmentID)

	group := new(errgroup.Group)
	group.SetLimit(s.concurrency)

	for _, submission := range job.submissions {
		submission := submission
		group.Go(func() error {
			if cancelCtx.Err() != nil {
				s.recordFailure(baseCtx, batch, submission.ID, models.FailureKindCancelled, "batch cancelled before dispatch")
				return nil
			}

			s.gradeItem(baseCtx, batch, job, submission)
			return nil
		})
	}

	_ = group.Wait()

	final, err := s.batches.GetByID(baseCtx, batch.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to reload batch for finalization")
		span.RecordError(err)
		return
	}

	status := models.BatchStatusCompleted
	if final.FailedCount > 0 {
		status = models.BatchStatusCompletedWithErrors
	}

	completedAt := s.now().UTC()
	if err := s.batches.Finalize(baseCtx, batch.ID, status, completedAt); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to finalize batch")
		span.RecordError(err)
		return
	}

	s.publishProgress(baseCtx, batch.ID, batch.AssignmentID)

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("status", status).
		Int("completed", final.CompletedCount).
		Int("failed", final.FailedCount).
		Msg("batch terminal")
}

// gradeItem grades one submission, retrying a transient failure once, and
// records either an evaluation record or a batch failure. Exactly one
// progress increment happens per item.
func (s *evaluationService) gradeItem(ctx context.Context, batch models.EvaluationBatch, job batchJob, submission models.Submission) {
	result, err := s.grader.Grade(ctx, gradeInput(job.assignment, job.key, submission))
	if err != nil && transient(err) {
		s.logger.Warn().Err(err).
			Str("batch_id", batch.ID).
			Uint("submission_id", submission.ID).
			Msg("transient grading failure, retrying once")
		result, err = s.grader.Grade(ctx, gradeInput(job.assignment, job.key, submission))
	}

	if err != nil {
		s.logger.Warn().Err(err).
			Str("batch_id", batch.ID).
			Uint("submission_id", submission.ID).
			Msg("grading failed permanently")
		s.recordFailure(ctx, batch, submission.ID, failureKind(err), err.Error())
		return
	}

	record := buildRecord(job.assignment, submission, result, models.EvaluationTypeBatch, &batch.ID)
	if err := s.evaluations.Create(ctx, &record); err != nil {
		// Storage failed, not the model; keep the two distinguishable.
		s.logger.Error().Err(err).
			Str("batch_id", batch.ID).
			Uint("submission_id", submission.ID).
			Msg("failed to persist evaluation record")
		s.recordFailure(ctx, batch, submission.ID, models.FailureKindPersistence, err.Error())
		return
	}

	observability.EvaluationOutcomes().WithLabelValues("batch", "graded").Inc()
	s.invalidateStats(ctx, batch.AssignmentID)
	s.advance(ctx, batch, false)

	s.logger.Info().
		Str("batch_id", batch.ID).
		Uint("submission_id", submission.ID).
		Float64("percentage", record.Percentage).
		Str("grade", record.Grade).
		Msg("batch item graded")
}

func (s *evaluationService) recordFailure(ctx context.Context, batch models.EvaluationBatch, submissionID uint, kind, message string) {
	observability.EvaluationOutcomes().WithLabelValues("batch", kind).Inc()

	failure := models.BatchFailure{
		BatchID:      batch.ID,
		SubmissionID: submissionID,
		Kind:         kind,
		Message:      message,
	}
	if err := s.batches.AddFailure(ctx, &failure); err != nil {
		s.logger.Error().Err(err).
			Str("batch_id", batch.ID).
			Uint("submission_id", submissionID).
			Msg("failed to record batch failure")
	}

	s.advance(ctx, batch, true)
}

func (s *evaluationService) advance(ctx context.Context, batch models.EvaluationBatch, failed bool) {
	if err := s.batches.IncrementProgress(ctx, batch.ID, failed); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to advance batch progress")
		return
	}

	s.publishProgress(ctx, batch.ID, batch.AssignmentID)
}

func (s *evaluationService) publishProgress(ctx context.Context, batchID string, assignmentID uint) {
	if s.events == nil {
		return
	}

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return
	}

	s.events.Publish(ctx, BatchEvent{
		BatchID:      batch.ID,
		AssignmentID: assignmentID,
		Completed:    batch.CompletedCount,
		Failed:       batch.FailedCount,
		Total:        batch.TotalCount,
		Status:       batch.Status,
	})
}

func (s *evaluationService) invalidateStats(ctx context.Context, assignmentID uint) {
	if s.stats != nil {
		s.stats.Invalidate(ctx, assignmentID)
	}
}

func (s *evaluationService) loadGradingContext(ctx context.Context, assignmentID uint) (models.Assignment, models.AnswerKey, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, models.AnswerKey{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, models.AnswerKey{}, err
	}

	key, err := s.answerKeys.LatestForAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, models.AnswerKey{}, ErrAnswerKeyMissing
		}
		return models.Assignment{}, models.AnswerKey{}, err
	}

	return assignment, key, nil
}

func (s *evaluationService) registerCancel(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[batchID] = cancel
	s.mu.Unlock()
}

func (s *evaluationService) dropCancel(batchID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[batchID]; ok {
		cancel()
		delete(s.cancels, batchID)
	}
	s.mu.Unlock()
}

// transient reports whether a grading error is worth one retry. Invalid input
// will not succeed on retry; everything transport-shaped might.
func transient(err error) bool {
	return errors.Is(err, ai.ErrTimeout) || errors.Is(err, ai.ErrService)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return models.FailureKindTimeout
	case errors.Is(err, ai.ErrInvalidInput):
		return models.FailureKindInvalidInput
	default:
		return models.FailureKindService
	}
}

func gradeInput(assignment models.Assignment, key models.AnswerKey, submission models.Submission) ai.GradeInput {
	return ai.GradeInput{
		AssignmentTitle:   assignment.Title,
		TotalMarks:        assignment.TotalMarks,
		AnswerKeyContent:  key.Content,
		AnswerKeyFiles:    key.Attachments,
		StudentName:       submission.Student.Name,
		SubmissionContent: submission.Content,
		SubmissionFiles:   submission.Attachments,
	}
}

// buildRecord normalizes a model result into a persistable record. The letter
// grade always comes from the classifier, never from the model's own label.
func buildRecord(assignment models.Assignment, submission models.Submission, result ai.GradeResult, evaluationType string, batchID *string) models.EvaluationRecord {
	percentage := 0.0
	if result.TotalMarks > 0 {
		percentage = result.ObtainedMarks / result.TotalMarks * 100
	}

	return models.EvaluationRecord{
		AssignmentID:        assignment.ID,
		SubmissionID:        submission.ID,
		StudentID:           submission.StudentID,
		BatchID:             batchID,
		EvaluationType:      evaluationType,
		TotalMarks:          result.TotalMarks,
		ObtainedMarks:       result.ObtainedMarks,
		Percentage:          percentage,
		Grade:               models.GradeFor(percentage),
		CorrectAnswers:      result.CorrectAnswers,
		IncorrectAnswers:    result.IncorrectAnswers,
		PartialCreditAreas:  result.PartialCreditAreas,
		Strengths:           result.Strengths,
		AreasForImprovement: result.AreasForImprovement,
		DetailedFeedback:    result.DetailedFeedback,
	}
}
