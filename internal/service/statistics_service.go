package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/repository"
)

// StatisticsService aggregates the current evaluation records of an assignment
// into class-level statistics. Only the newest record per submission counts;
// re-evaluated submissions never appear twice.
type StatisticsService interface {
	Summarize(ctx context.Context, assignmentID uint) (dto.AssignmentSummaryResponse, error)
	Invalidate(ctx context.Context, assignmentID uint)
}

type statisticsService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	evaluations repository.EvaluationRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStatisticsService constructs the statistics service. cache may be nil, in
// which case every summary is computed fresh.
func NewStatisticsService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	evaluations repository.EvaluationRepository,
	cache *redis.Client,
	ttl time.Duration,
	logger zerolog.Logger,
) StatisticsService {
	return &statisticsService{
		assignments: assignments,
		submissions: submissions,
		evaluations: evaluations,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "statistics_service").Logger(),
		now:         time.Now,
	}
}

func summaryCacheKey(assignmentID uint) string {
	return fmt.Sprintf("summary:assignment:%d", assignmentID)
}

func (s *statisticsService) Summarize(ctx context.Context, assignmentID uint) (dto.AssignmentSummaryResponse, error) {
	cacheKey := summaryCacheKey(assignmentID)
	tracer := otel.Tracer("github.com/classboard/classboard-api/internal/service/statistics")
	ctx, span := tracer.Start(ctx, "statistics.summarize")
	span.SetAttributes(attribute.String("statistics.cache_key", cacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.AssignmentSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				span.SetAttributes(attribute.Bool("statistics.cache_hit", true))
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
			span.RecordError(err)
		}
	}

	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment_lookup_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentSummaryResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentSummaryResponse{}, err
	}

	total, err := s.submissions.CountByAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_submissions_failed")
		return dto.AssignmentSummaryResponse{}, err
	}

	records, err := s.evaluations.ListCurrentByAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_evaluations_failed")
		return dto.AssignmentSummaryResponse{}, err
	}

	summary := s.buildSummary(assignmentID, int(total), records)
	span.SetAttributes(attribute.Int("statistics.evaluated", len(records)))

	if s.cache != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store summary cache")
				span.RecordError(err)
			}
		}
	}

	return summary, nil
}

// Invalidate drops the cached summary so the next read recomputes it. Called
// after every persisted evaluation record.
func (s *statisticsService) Invalidate(ctx context.Context, assignmentID uint) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Del(ctx, summaryCacheKey(assignmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to invalidate summary cache")
	}
}

func (s *statisticsService) buildSummary(assignmentID uint, totalSubmissions int, records []models.EvaluationRecord) dto.AssignmentSummaryResponse {
	// Only grades that actually occur appear in the distribution.
	distribution := make(map[string]int)

	summary := dto.AssignmentSummaryResponse{
		AssignmentID:         assignmentID,
		TotalSubmissions:     totalSubmissions,
		EvaluatedSubmissions: len(records),
		GradeDistribution:    distribution,
		GeneratedAt:          s.now().UTC(),
	}

	if len(records) == 0 {
		return summary
	}

	sum := 0.0
	max := records[0].Percentage
	min := records[0].Percentage
	passed := 0

	for _, record := range records {
		sum += record.Percentage
		if record.Percentage > max {
			max = record.Percentage
		}
		if record.Percentage < min {
			min = record.Percentage
		}
		if record.Passed() {
			passed++
		}
		distribution[record.Grade]++
	}

	summary.MeanPercentage = sum / float64(len(records))
	summary.MaxPercentage = max
	summary.MinPercentage = min
	summary.PassRate = float64(passed) / float64(len(records))

	return summary
}
