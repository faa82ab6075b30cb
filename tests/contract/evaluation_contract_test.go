package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/handler"
	"github.com/classboard/classboard-api/internal/models"
)

type stubEvaluationService struct {
	status dto.BatchStatusResponse
}

func (s stubEvaluationService) EvaluateSingle(context.Context, uint, uint) (dto.EvaluationResponse, error) {
	return dto.EvaluationResponse{}, nil
}

func (s stubEvaluationService) StartBatch(context.Context, dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error) {
	return s.status, nil
}

func (s stubEvaluationService) RunBatch(context.Context, dto.BatchEvaluationRequest) (dto.BatchStatusResponse, error) {
	return s.status, nil
}

func (s stubEvaluationService) GetBatchStatus(context.Context, string) (dto.BatchStatusResponse, error) {
	return s.status, nil
}

func (s stubEvaluationService) CancelBatch(context.Context, string) error {
	return nil
}

func (s stubEvaluationService) GetEvaluations(context.Context, uint) ([]dto.EvaluationResponse, error) {
	return nil, nil
}

type stubStatisticsService struct {
	summary dto.AssignmentSummaryResponse
}

func (s stubStatisticsService) Summarize(context.Context, uint) (dto.AssignmentSummaryResponse, error) {
	return s.summary, nil
}

func (s stubStatisticsService) Invalidate(context.Context, uint) {}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	return schema
}

func validateResponse(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestBatchStatusContract(t *testing.T) {
	schema := compileSchema(t, "batch_status.schema.json")

	now := time.Now().UTC()
	completedAt := now.Add(time.Minute)
	status := dto.BatchStatusResponse{
		ID:           "0b51a1de-7a5c-4e22-9f5b-1c9a27e0c2a1",
		AssignmentID: 12,
		RequestedBy:  "teacher@example.com",
		Total:        4,
		Completed:    4,
		Failed:       1,
		Status:       models.BatchStatusCompletedWithErrors,
		CreatedAt:    now,
		CompletedAt:  &completedAt,
		Failures: []dto.BatchFailureResponse{
			{SubmissionID: 3, Kind: models.FailureKindTimeout, Message: "grading call timed out"},
		},
	}

	svc := stubEvaluationService{status: status}
	evaluationHandler := handler.NewEvaluationHandler(svc, stubStatisticsService{}, nil, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v2/evaluations", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	evaluationHandler.Register(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/evaluations/batches/0b51a1de-7a5c-4e22-9f5b-1c9a27e0c2a1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}

func TestAssignmentSummaryContract(t *testing.T) {
	schema := compileSchema(t, "assignment_summary.schema.json")

	summary := dto.AssignmentSummaryResponse{
		AssignmentID:         12,
		TotalSubmissions:     10,
		EvaluatedSubmissions: 8,
		MeanPercentage:       74.25,
		MaxPercentage:        98,
		MinPercentage:        41,
		GradeDistribution:    map[string]int{"A": 2, "B": 3, "C": 1, "D": 1, "F": 1},
		PassRate:             0.875,
		GeneratedAt:          time.Now().UTC(),
	}

	stats := stubStatisticsService{summary: summary}
	evaluationHandler := handler.NewEvaluationHandler(stubEvaluationService{}, stats, nil, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v2/assignments", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	evaluationHandler.RegisterAssignmentRoutes(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/assignments/12/summary", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}
