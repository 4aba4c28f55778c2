package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	oaischema "github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOpenAIBaseURL points at Gemini's OpenAI-compatible endpoint.
const DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

var (
	gradingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "grading",
		Name:      "oracle_duration_seconds",
		Help:      "Duration of grading oracle requests",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	}, []string{"provider", "model"})

	gradingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "grading",
		Name:      "oracle_failures_total",
		Help:      "Number of failed grading oracle requests",
	}, []string{"provider", "model"})
)

// OpenAIConfig defines configuration options for the OpenAI-compatible grader.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float32
	RecomputeScore bool
	Logger         zerolog.Logger
}

// OpenAIGrader implements Grader against an OpenAI-compatible chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	parser responseParser
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	client := openai.NewClientWithConfig(config)

	return &OpenAIGrader{
		client: client,
		cfg:    cfg,
		parser: newResponseParser(cfg.RecomputeScore),
		tracer: otel.Tracer("github.com/noah-isme/gema-autograder/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Grade sends the submission to the model and parses the structured response.
func (g *OpenAIGrader) Grade(parent context.Context, content SubmissionContent) (GradingResult, error) {
	if err := validateContent("openai", content); err != nil {
		return GradingResult{}, err
	}

	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("submission.kind", string(content.Kind)),
		attribute.String("submission.mime_type", content.MimeType),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemInstruction(),
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: buildOpenAIParts(content),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "grading_result",
				Schema: gradingResultDefinition(),
				Strict: true,
			},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	gradingDuration.WithLabelValues("openai", g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return GradingResult{}, g.fail(span, fmt.Errorf("openai grade: %w", err))
	}

	if len(resp.Choices) == 0 {
		return GradingResult{}, g.fail(span, errors.New("no choices returned from model"))
	}

	result, err := g.parser.parse(resp.Choices[0].Message.Content)
	if err != nil {
		return GradingResult{}, g.fail(span, err)
	}

	span.SetAttributes(attribute.Float64("grading.score", result.Score))
	g.logger.Debug().
		Float64("score", result.Score).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("submission graded")

	return result, nil
}

func (g *OpenAIGrader) fail(span trace.Span, err error) error {
	gradingFailures.WithLabelValues("openai", g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return oracleFailure("openai", err)
}

func buildOpenAIParts(content SubmissionContent) []openai.ChatMessagePart {
	if content.Kind == ContentKindBinary {
		return []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", strings.ToLower(strings.TrimSpace(content.MimeType)), content.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			},
			{Type: openai.ChatMessagePartTypeText, Text: fileInstruction},
		}
	}

	return []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: textLabel},
		{Type: openai.ChatMessagePartTypeText, Text: content.Data},
		{Type: openai.ChatMessagePartTypeText, Text: textInstruction},
	}
}

func gradingResultDefinition() *oaischema.Definition {
	score := func(description string) oaischema.Definition {
		return oaischema.Definition{Type: oaischema.Number, Description: description}
	}

	return &oaischema.Definition{
		Type: oaischema.Object,
		Properties: map[string]oaischema.Definition{
			"score":    score("Final weighted score (0-100)"),
			"summary":  {Type: oaischema.String, Description: "A 1-2 sentence summary of performance"},
			"feedback": {Type: oaischema.String, Description: "Constructive criticism and praise (30-50 words)"},
			"breakdown": {
				Type: oaischema.Object,
				Properties: map[string]oaischema.Definition{
					"understanding": score("Score for Understanding (0-100)"),
					"logic":         score("Score for Logic & Structure (0-100)"),
					"completeness":  score("Score for Completeness (0-100)"),
				},
				Required:             []string{"understanding", "logic", "completeness"},
				AdditionalProperties: false,
			},
		},
		Required:             []string{"score", "summary", "feedback", "breakdown"},
		AdditionalProperties: false,
	}
}
