package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/repository"
	"github.com/classboard/classboard-api/pkg/ai"
)

// scriptedGrader returns a fixed result, optionally consuming a scripted
// error sequence per submission. Submissions are identified by their content.
type scriptedGrader struct {
	mu      sync.Mutex
	calls   map[string]int
	scripts map[string][]error
	result  ai.GradeResult
}

func newScriptedGrader(obtained float64) *scriptedGrader {
	return &scriptedGrader{
		calls:   map[string]int{},
		scripts: map[string][]error{},
		result: ai.GradeResult{
			TotalMarks:       100,
			ObtainedMarks:    obtained,
			DetailedFeedback: "solid work",
		},
	}
}

func (g *scriptedGrader) Grade(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := input.SubmissionContent
	g.calls[key]++
	if errs := g.scripts[key]; len(errs) > 0 {
		err := errs[0]
		g.scripts[key] = errs[1:]
		if err != nil {
			return ai.GradeResult{}, err
		}
	}

	return g.result, nil
}

func (g *scriptedGrader) callsFor(content string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[content]
}

func (g *scriptedGrader) setObtained(obtained float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result.ObtainedMarks = obtained
}

// gatedGrader blocks every call until released, signalling each start. It
// lets tests hold an item in flight while the batch is cancelled.
type gatedGrader struct {
	started chan string
	release chan struct{}
}

func (g *gatedGrader) Grade(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
	g.started <- input.SubmissionContent
	<-g.release
	return ai.GradeResult{TotalMarks: 100, ObtainedMarks: 75}, nil
}

type evalFixture struct {
	db          *gorm.DB
	svc         EvaluationService
	evaluations repository.EvaluationRepository
	batches     repository.BatchRepository
	assignment  models.Assignment
	submissions []models.Submission
}

func submissionContent(i int) string {
	return fmt.Sprintf("answer set %d", i)
}

func newEvalFixture(t *testing.T, grader ai.Grader, submissionCount, concurrency int) *evalFixture {
	t.Helper()

	db := newTestDB(t)

	assignment := models.Assignment{Title: "Midterm", TotalMarks: 100, DueDate: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.Create(&assignment).Error)

	key := models.AnswerKey{AssignmentID: assignment.ID, TeacherName: "Ms. Ortiz", Content: "expected answers"}
	require.NoError(t, db.Create(&key).Error)

	submissions := make([]models.Submission, 0, submissionCount)
	for i := 0; i < submissionCount; i++ {
		student := models.Student{Name: fmt.Sprintf("Student %d", i), Email: fmt.Sprintf("student%d@example.com", i)}
		require.NoError(t, db.Create(&student).Error)

		submission := models.Submission{
			AssignmentID: assignment.ID,
			StudentID:    student.ID,
			Content:      submissionContent(i),
			Status:       models.SubmissionStatusSubmitted,
		}
		require.NoError(t, db.Create(&submission).Error)
		submissions = append(submissions, submission)
	}

	evaluations := repository.NewEvaluationRepository(db)
	batches := repository.NewBatchRepository(db)

	svc := NewEvaluationService(
		repository.NewAssignmentRepository(db),
		repository.NewSubmissionRepository(db),
		repository.NewAnswerKeyRepository(db),
		evaluations,
		batches,
		grader,
		nil,
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
		EvaluationConfig{Concurrency: concurrency},
	)

	return &evalFixture{
		db:          db,
		svc:         svc,
		evaluations: evaluations,
		batches:     batches,
		assignment:  assignment,
		submissions: submissions,
	}
}

func (f *evalFixture) submissionIDs() []uint {
	ids := make([]uint, 0, len(f.submissions))
	for _, submission := range f.submissions {
		ids = append(ids, submission.ID)
	}
	return ids
}

func (f *evalFixture) batchRequest() dto.BatchEvaluationRequest {
	return dto.BatchEvaluationRequest{
		AssignmentID:  f.assignment.ID,
		SubmissionIDs: f.submissionIDs(),
		RequestedBy:   "teacher@example.com",
	}
}

func TestEvaluateSinglePersistsRecord(t *testing.T) {
	grader := newScriptedGrader(85)
	fixture := newEvalFixture(t, grader, 1, 1)

	response, err := fixture.svc.EvaluateSingle(context.Background(), fixture.assignment.ID, fixture.submissions[0].ID)
	require.NoError(t, err)
	require.Equal(t, 85.0, response.Percentage)
	require.Equal(t, "B", response.Grade)
	require.Equal(t, models.EvaluationTypeSingle, response.EvaluationType)
	require.Nil(t, response.BatchID)

	records, err := fixture.evaluations.ListByAssignment(context.Background(), fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestEvaluateSingleDoesNotRetry(t *testing.T) {
	grader := newScriptedGrader(85)
	grader.scripts[submissionContent(0)] = []error{ai.ErrService}
	fixture := newEvalFixture(t, grader, 1, 1)

	_, err := fixture.svc.EvaluateSingle(context.Background(), fixture.assignment.ID, fixture.submissions[0].ID)
	require.ErrorIs(t, err, ai.ErrService)
	require.Equal(t, 1, grader.callsFor(submissionContent(0)))

	records, err := fixture.evaluations.ListByAssignment(context.Background(), fixture.assignment.ID)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestEvaluateSingleWithoutGrader(t *testing.T) {
	fixture := newEvalFixture(t, nil, 1, 1)

	_, err := fixture.svc.EvaluateSingle(context.Background(), fixture.assignment.ID, fixture.submissions[0].ID)
	require.ErrorIs(t, err, ErrGraderUnavailable)
}

func TestEvaluateSingleUnknownSubmission(t *testing.T) {
	fixture := newEvalFixture(t, newScriptedGrader(85), 1, 1)

	_, err := fixture.svc.EvaluateSingle(context.Background(), fixture.assignment.ID, 9999)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestRunBatchAllSucceed(t *testing.T) {
	grader := newScriptedGrader(92)
	fixture := newEvalFixture(t, grader, 3, 2)

	status, err := fixture.svc.RunBatch(context.Background(), fixture.batchRequest())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, status.Status)
	require.Equal(t, 3, status.Total)
	require.Equal(t, 3, status.Completed)
	require.Equal(t, 0, status.Failed)
	require.NotNil(t, status.CompletedAt)
	require.Empty(t, status.Failures)

	records, err := fixture.evaluations.ListByAssignment(context.Background(), fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, record := range records {
		require.Equal(t, models.EvaluationTypeBatch, record.EvaluationType)
		require.NotNil(t, record.BatchID)
		require.Equal(t, status.ID, *record.BatchID)
		require.Equal(t, "A", record.Grade)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	grader := newScriptedGrader(75)
	grader.scripts[submissionContent(1)] = []error{ai.ErrService, ai.ErrService}
	fixture := newEvalFixture(t, grader, 3, 2)

	status, err := fixture.svc.RunBatch(context.Background(), fixture.batchRequest())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompletedWithErrors, status.Status)
	require.Equal(t, 3, status.Completed, "failed items still count as attempted")
	require.Equal(t, 1, status.Failed)
	require.Len(t, status.Failures, 1)
	require.Equal(t, fixture.submissions[1].ID, status.Failures[0].SubmissionID)
	require.Equal(t, models.FailureKindService, status.Failures[0].Kind)

	require.Equal(t, 2, grader.callsFor(submissionContent(1)), "transient failures are retried once")

	records, err := fixture.evaluations.ListByAssignment(context.Background(), fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, records, 2, "the failed item produces no record")
}

func TestRunBatchRecoversAfterOneTransientFailure(t *testing.T) {
	grader := newScriptedGrader(75)
	grader.scripts[submissionContent(0)] = []error{ai.ErrTimeout}
	fixture := newEvalFixture(t, grader, 2, 2)

	status, err := fixture.svc.RunBatch(context.Background(), fixture.batchRequest())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, status.Status)
	require.Equal(t, 0, status.Failed)
	require.Equal(t, 2, grader.callsFor(submissionContent(0)))
}

func TestRunBatchInvalidInputNotRetried(t *testing.T) {
	grader := newScriptedGrader(75)
	grader.scripts[submissionContent(0)] = []error{ai.ErrInvalidInput}
	fixture := newEvalFixture(t, grader, 1, 1)

	status, err := fixture.svc.RunBatch(context.Background(), fixture.batchRequest())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompletedWithErrors, status.Status)
	require.Equal(t, 1, grader.callsFor(submissionContent(0)), "invalid input is never retried")
	require.Len(t, status.Failures, 1)
	require.Equal(t, models.FailureKindInvalidInput, status.Failures[0].Kind)
}

func TestRunBatchRejectsBadRequests(t *testing.T) {
	fixture := newEvalFixture(t, newScriptedGrader(75), 2, 1)
	ctx := context.Background()

	request := fixture.batchRequest()
	request.SubmissionIDs = append(request.SubmissionIDs, request.SubmissionIDs[0])
	_, err := fixture.svc.RunBatch(ctx, request)
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	request = fixture.batchRequest()
	request.SubmissionIDs = []uint{9999}
	_, err = fixture.svc.RunBatch(ctx, request)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	request = fixture.batchRequest()
	request.AssignmentID = 9999
	_, err = fixture.svc.RunBatch(ctx, request)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	request = fixture.batchRequest()
	request.SubmissionIDs = nil
	_, err = fixture.svc.RunBatch(ctx, request)
	require.Error(t, err)
}

func TestRunBatchRejectsForeignSubmission(t *testing.T) {
	fixture := newEvalFixture(t, newScriptedGrader(75), 1, 1)

	other := models.Assignment{Title: "Final", TotalMarks: 100, DueDate: time.Now().Add(48 * time.Hour)}
	require.NoError(t, fixture.db.Create(&other).Error)
	foreign := models.Submission{
		AssignmentID: other.ID,
		StudentID:    fixture.submissions[0].StudentID,
		Content:      "other answer",
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, fixture.db.Create(&foreign).Error)

	request := fixture.batchRequest()
	request.SubmissionIDs = []uint{foreign.ID}
	_, err := fixture.svc.RunBatch(context.Background(), request)
	require.ErrorIs(t, err, ErrSubmissionMismatch)
}

func TestStartBatchRunsInBackground(t *testing.T) {
	grader := newScriptedGrader(80)
	fixture := newEvalFixture(t, grader, 4, 2)
	ctx := context.Background()

	status, err := fixture.svc.StartBatch(ctx, fixture.batchRequest())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusPending, status.Status)
	require.Equal(t, 4, status.Total)

	require.Eventually(t, func() bool {
		current, err := fixture.svc.GetBatchStatus(ctx, status.ID)
		if err != nil {
			return false
		}
		return current.Status == models.BatchStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := fixture.svc.GetBatchStatus(ctx, status.ID)
	require.NoError(t, err)
	require.Equal(t, 4, final.Completed)
	require.Equal(t, 0, final.Failed)
}

func TestGetBatchStatusUnknown(t *testing.T) {
	fixture := newEvalFixture(t, newScriptedGrader(80), 1, 1)

	_, err := fixture.svc.GetBatchStatus(context.Background(), "no-such-batch")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestCancelBatchStopsDispatchButFinishesInFlight(t *testing.T) {
	grader := &gatedGrader{started: make(chan string, 8), release: make(chan struct{})}
	fixture := newEvalFixture(t, grader, 5, 1)
	ctx := context.Background()

	status, err := fixture.svc.StartBatch(ctx, fixture.batchRequest())
	require.NoError(t, err)

	// First item reaches the grader and is released to completion.
	<-grader.started
	grader.release <- struct{}{}

	// Second item is now in flight, held inside the grader.
	<-grader.started

	require.Eventually(t, func() bool {
		current, err := fixture.svc.GetBatchStatus(ctx, status.ID)
		return err == nil && current.Completed >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, fixture.svc.CancelBatch(ctx, status.ID))

	// The in-flight item still completes and persists.
	grader.release <- struct{}{}

	require.Eventually(t, func() bool {
		current, err := fixture.svc.GetBatchStatus(ctx, status.ID)
		return err == nil && current.Status == models.BatchStatusCompletedWithErrors
	}, 5*time.Second, 10*time.Millisecond)

	final, err := fixture.svc.GetBatchStatus(ctx, status.ID)
	require.NoError(t, err)
	require.Equal(t, 5, final.Completed, "every item is accounted for")
	require.Equal(t, 3, final.Failed)

	cancelled := 0
	for _, failure := range final.Failures {
		if failure.Kind == models.FailureKindCancelled {
			cancelled++
		}
	}
	require.Equal(t, 3, cancelled)

	records, err := fixture.evaluations.ListByAssignment(ctx, fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, records, 2, "items graded before or during cancellation are kept")

	require.ErrorIs(t, fixture.svc.CancelBatch(ctx, status.ID), ErrBatchTerminal)
}

func TestCancelBatchUnknown(t *testing.T) {
	fixture := newEvalFixture(t, newScriptedGrader(80), 1, 1)

	require.ErrorIs(t, fixture.svc.CancelBatch(context.Background(), "no-such-batch"), ErrBatchNotFound)
}

func TestGetEvaluationsReturnsCurrentOnly(t *testing.T) {
	grader := newScriptedGrader(55)
	fixture := newEvalFixture(t, grader, 1, 1)
	ctx := context.Background()

	_, err := fixture.svc.EvaluateSingle(ctx, fixture.assignment.ID, fixture.submissions[0].ID)
	require.NoError(t, err)

	grader.setObtained(95)
	_, err = fixture.svc.EvaluateSingle(ctx, fixture.assignment.ID, fixture.submissions[0].ID)
	require.NoError(t, err)

	current, err := fixture.svc.GetEvaluations(ctx, fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, current, 1, "only the newest record per submission is current")
	require.Equal(t, 95.0, current[0].Percentage)
	require.Equal(t, "A", current[0].Grade)

	all, err := fixture.evaluations.ListByAssignment(ctx, fixture.assignment.ID)
	require.NoError(t, err)
	require.Len(t, all, 2, "history is retained")
}
