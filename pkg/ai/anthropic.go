package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicConfig configures the Anthropic Messages grader.
type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	RecomputeScore bool
	Logger         zerolog.Logger
}

// AnthropicGrader implements Grader using the Anthropic Messages API.
type AnthropicGrader struct {
	client anthropic.Client
	cfg    AnthropicConfig
	parser responseParser
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicGrader constructs a grader for Anthropic models.
func NewAnthropicGrader(cfg AnthropicConfig) (*AnthropicGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &AnthropicGrader{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		parser: newResponseParser(cfg.RecomputeScore),
		tracer: otel.Tracer("github.com/noah-isme/gema-autograder/pkg/ai/anthropic"),
		logger: logger.With().Str("component", "anthropic_grader").Logger(),
	}, nil
}

// Grade sends the submission to Claude and parses the JSON it returns.
func (g *AnthropicGrader) Grade(parent context.Context, content SubmissionContent) (GradingResult, error) {
	if err := validateContent("anthropic", content); err != nil {
		return GradingResult{}, err
	}

	blocks, err := buildAnthropicBlocks(content)
	if err != nil {
		return GradingResult{}, malformed("anthropic", err)
	}

	ctx, span := g.tracer.Start(parent, "anthropic.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("submission.kind", string(content.Kind)),
	))
	defer span.End()

	start := time.Now()
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: int64(g.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: SystemInstruction()}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	gradingDuration.WithLabelValues("anthropic", g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return GradingResult{}, g.fail(span, fmt.Errorf("anthropic grade: %w", err))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result, err := g.parser.parse(text.String())
	if err != nil {
		return GradingResult{}, g.fail(span, err)
	}

	span.SetAttributes(attribute.Float64("grading.score", result.Score))
	g.logger.Debug().Float64("score", result.Score).Msg("submission graded")

	return result, nil
}

func (g *AnthropicGrader) fail(span trace.Span, err error) error {
	gradingFailures.WithLabelValues("anthropic", g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return oracleFailure("anthropic", err)
}

func buildAnthropicBlocks(content SubmissionContent) ([]anthropic.ContentBlockParamUnion, error) {
	if content.Kind == ContentKindText {
		return []anthropic.ContentBlockParamUnion{
			anthropic.NewTextBlock(textLabel),
			anthropic.NewTextBlock(content.Data),
			anthropic.NewTextBlock(textInstruction),
		}, nil
	}

	mediaType := strings.ToLower(strings.TrimSpace(content.MimeType))
	var inline anthropic.ContentBlockParamUnion
	switch {
	case mediaType == "application/pdf":
		inline = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: content.Data})
	case strings.HasPrefix(mediaType, "image/"):
		inline = anthropic.NewImageBlockBase64(mediaType, content.Data)
	default:
		return nil, errors.New("unsupported inline media type " + content.MimeType)
	}

	return []anthropic.ContentBlockParamUnion{inline, anthropic.NewTextBlock(fileInstruction)}, nil
}
