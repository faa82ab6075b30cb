package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classboard",
		Subsystem: "grading",
		Name:      "call_duration_seconds",
		Help:      "Duration of grading model calls",
	}, []string{"model"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classboard",
		Subsystem: "grading",
		Name:      "call_failures_total",
		Help:      "Number of failed grading model calls",
	}, []string{"model", "kind"})
)

// The model must answer with this shape; anything else is a service error.
const gradeResultSchema = `{
  "type": "object",
  "required": ["total_marks", "obtained_marks"],
  "properties": {
    "total_marks": {"type": "number", "minimum": 0},
    "obtained_marks": {"type": "number", "minimum": 0},
    "grade": {"type": "string"},
    "correct_answers": {"type": "array", "items": {"type": "string"}},
    "incorrect_answers": {"type": "array", "items": {"type": "string"}},
    "partial_credit_areas": {"type": "array", "items": {"type": "string"}},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "areas_for_improvement": {"type": "array", "items": {"type": "string"}},
    "detailed_feedback": {"type": "string"}
  }
}`

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	schema *jsonschema.Schema
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}

	schema, err := jsonschema.CompileString("grade_result.json", gradeResultSchema)
	if err != nil {
		return nil, fmt.Errorf("compile grade result schema: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		schema: schema,
		tracer: otel.Tracer("github.com/classboard/classboard-api/pkg/ai/openai"),
		logger: logger,
	}, nil
}

// Grade sends the grading request to OpenAI and parses the structured reply.
func (g *OpenAIGrader) Grade(parent context.Context, input GradeInput) (GradeResult, error) {
	if err := validateInput(input); err != nil {
		return GradeResult{}, err
	}

	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildGradePrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	gradeDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		mapped := mapCompletionError(err)
		gradeFailures.WithLabelValues(g.cfg.Model, failureLabel(mapped)).Inc()
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return GradeResult{}, mapped
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned", ErrService)
		gradeFailures.WithLabelValues(g.cfg.Model, failureLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradeResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := g.parseGradeResponse(content)
	if err != nil {
		gradeFailures.WithLabelValues(g.cfg.Model, failureLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradeResult{}, err
	}

	return result, nil
}

func validateInput(input GradeInput) error {
	if strings.TrimSpace(input.AnswerKeyContent) == "" && len(input.AnswerKeyFiles) == 0 {
		return fmt.Errorf("%w: answer key content is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(input.SubmissionContent) == "" && len(input.SubmissionFiles) == 0 {
		return fmt.Errorf("%w: submission content is empty", ErrInvalidInput)
	}
	return nil
}

func mapCompletionError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrService, err)
}

func failureLabel(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "service"
}

func (g *OpenAIGrader) parseGradeResponse(content string) (GradeResult, error) {
	var generic interface{}
	if err := json.Unmarshal([]byte(content), &generic); err != nil {
		return GradeResult{}, fmt.Errorf("%w: reply is not json: %v", ErrService, err)
	}

	if err := g.schema.Validate(generic); err != nil {
		return GradeResult{}, fmt.Errorf("%w: reply does not match grade schema: %v", ErrService, err)
	}

	var result GradeResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return GradeResult{}, fmt.Errorf("%w: decode grade reply: %v", ErrService, err)
	}

	if result.TotalMarks <= 0 {
		return GradeResult{}, fmt.Errorf("%w: total marks must be positive", ErrService)
	}

	if result.ObtainedMarks < 0 {
		result.ObtainedMarks = 0
	}
	if result.ObtainedMarks > result.TotalMarks {
		result.ObtainedMarks = result.TotalMarks
	}

	return result, nil
}

func graderSystemPrompt() string {
	return "You are a strict teaching assistant grading a student submission against the teacher's answer key. " +
		"Respond with a JSON object containing total_marks, obtained_marks, grade, correct_answers, incorrect_answers, " +
		"partial_credit_areas, strengths, areas_for_improvement, and detailed_feedback. " +
		"Award partial credit where the reasoning is sound."
}

func buildGradePrompt(input GradeInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Assignment\n")
	builder.WriteString(input.AssignmentTitle)
	if input.TotalMarks > 0 {
		builder.WriteString(fmt.Sprintf("\nTotal marks: %.0f", input.TotalMarks))
	}
	builder.WriteString("\n\n## Answer Key\n")
	builder.WriteString(input.AnswerKeyContent)
	for _, url := range input.AnswerKeyFiles {
		builder.WriteString("\nAttachment: ")
		builder.WriteString(url)
	}
	builder.WriteString("\n\n## Student\n")
	builder.WriteString(input.StudentName)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.SubmissionContent)
	for _, url := range input.SubmissionFiles {
		builder.WriteString("\nAttachment: ")
		builder.WriteString(url)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
