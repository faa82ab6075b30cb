package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/repository"
)

func newStatsFixture(t *testing.T, cache *redis.Client) (*gorm.DB, StatisticsService, models.Assignment) {
	t.Helper()

	db := newTestDB(t)

	assignment := models.Assignment{Title: "Quiz", TotalMarks: 100, DueDate: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.Create(&assignment).Error)

	svc := NewStatisticsService(
		repository.NewAssignmentRepository(db),
		repository.NewSubmissionRepository(db),
		repository.NewEvaluationRepository(db),
		cache,
		time.Minute,
		testLogger(),
	)

	return db, svc, assignment
}

func seedEvaluatedSubmission(t *testing.T, db *gorm.DB, assignmentID uint, percentage float64) models.Submission {
	t.Helper()

	student := models.Student{Name: "Student", Email: uuid.NewString() + "@example.com"}
	require.NoError(t, db.Create(&student).Error)

	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    student.ID,
		Content:      "answers",
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, db.Create(&submission).Error)

	record := models.EvaluationRecord{
		AssignmentID:   assignmentID,
		SubmissionID:   submission.ID,
		StudentID:      student.ID,
		EvaluationType: models.EvaluationTypeSingle,
		TotalMarks:     100,
		ObtainedMarks:  percentage,
		Percentage:     percentage,
		Grade:          models.GradeFor(percentage),
	}
	require.NoError(t, db.Create(&record).Error)

	return submission
}

func TestSummarizeEmptyAssignment(t *testing.T) {
	_, svc, assignment := newStatsFixture(t, nil)

	summary, err := svc.Summarize(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 0, summary.TotalSubmissions)
	require.Equal(t, 0, summary.EvaluatedSubmissions)
	require.Equal(t, 0.0, summary.MeanPercentage)
	require.Equal(t, 0.0, summary.PassRate)
	require.Empty(t, summary.GradeDistribution)
}

func TestSummarizeUnknownAssignment(t *testing.T) {
	_, svc, _ := newStatsFixture(t, nil)

	_, err := svc.Summarize(context.Background(), 9999)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestSummarizeAggregates(t *testing.T) {
	db, svc, assignment := newStatsFixture(t, nil)

	for _, percentage := range []float64{100, 80, 60, 40} {
		seedEvaluatedSubmission(t, db, assignment.ID, percentage)
	}

	summary, err := svc.Summarize(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 4, summary.TotalSubmissions)
	require.Equal(t, 4, summary.EvaluatedSubmissions)
	require.Equal(t, 70.0, summary.MeanPercentage)
	require.Equal(t, 100.0, summary.MaxPercentage)
	require.Equal(t, 40.0, summary.MinPercentage)
	require.Equal(t, 0.75, summary.PassRate)
	require.Equal(t, 1, summary.GradeDistribution["A"])
	require.Equal(t, 1, summary.GradeDistribution["B"])
	require.Equal(t, 1, summary.GradeDistribution["D"])
	require.Equal(t, 1, summary.GradeDistribution["F"])
	require.NotContains(t, summary.GradeDistribution, "C")
}

func TestSummarizeUsesCurrentRecordOnly(t *testing.T) {
	db, svc, assignment := newStatsFixture(t, nil)

	submission := seedEvaluatedSubmission(t, db, assignment.ID, 50)

	// Re-evaluation: a newer record supersedes the old one.
	newer := models.EvaluationRecord{
		AssignmentID:   assignment.ID,
		SubmissionID:   submission.ID,
		StudentID:      submission.StudentID,
		EvaluationType: models.EvaluationTypeBatch,
		TotalMarks:     100,
		ObtainedMarks:  90,
		Percentage:     90,
		Grade:          models.GradeFor(90),
	}
	require.NoError(t, db.Create(&newer).Error)

	summary, err := svc.Summarize(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EvaluatedSubmissions)
	require.Equal(t, 90.0, summary.MeanPercentage)
	require.Equal(t, 1.0, summary.PassRate)
}

func TestSummarizeCachingAndInvalidation(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	db, svc, assignment := newStatsFixture(t, client)
	seedEvaluatedSubmission(t, db, assignment.ID, 80)
	ctx := context.Background()

	first, err := svc.Summarize(ctx, assignment.ID)
	require.NoError(t, err)
	require.True(t, server.Exists(summaryCacheKey(assignment.ID)))

	// A new record lands without invalidation; the stale summary is served.
	seedEvaluatedSubmission(t, db, assignment.ID, 100)
	cached, err := svc.Summarize(ctx, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, first.EvaluatedSubmissions, cached.EvaluatedSubmissions)

	svc.Invalidate(ctx, assignment.ID)
	require.False(t, server.Exists(summaryCacheKey(assignment.ID)))

	fresh, err := svc.Summarize(ctx, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 2, fresh.EvaluatedSubmissions)
	require.Equal(t, 100.0, fresh.MaxPercentage)
}
