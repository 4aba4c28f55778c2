package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

const textMimeType = "text/plain"

// DocumentConverter turns a binary document into plain text.
type DocumentConverter interface {
	ConvertToText(ctx context.Context, raw []byte) (string, error)
}

// DocumentConverterFunc adapts a function to DocumentConverter.
type DocumentConverterFunc func(ctx context.Context, raw []byte) (string, error)

// ConvertToText calls f.
func (f DocumentConverterFunc) ConvertToText(ctx context.Context, raw []byte) (string, error) {
	return f(ctx, raw)
}

// ContentExtractor normalizes uploaded files into grader payloads.
type ContentExtractor interface {
	Extract(ctx context.Context, file models.SubmissionFile) (ai.SubmissionContent, error)
}

type contentExtractor struct {
	docx   DocumentConverter
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewContentExtractor builds an extractor that delegates .docx files to docx.
func NewContentExtractor(docx DocumentConverter, logger zerolog.Logger) ContentExtractor {
	return &contentExtractor{
		docx:   docx,
		logger: logger.With().Str("component", "content_extractor").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-autograder/internal/service/extractor"),
	}
}

func (e *contentExtractor) Extract(ctx context.Context, file models.SubmissionFile) (ai.SubmissionContent, error) {
	ctx, span := e.tracer.Start(ctx, "extractor.extract")
	defer span.End()

	name := file.Name()
	span.SetAttributes(
		attribute.String("file.name", name),
		attribute.String("file.declared_mime", file.ContentType()),
	)

	raw, err := readAll(file)
	if err != nil {
		return ai.SubmissionContent{}, e.fail(span, name, err)
	}

	mimeType := strings.TrimSpace(file.ContentType())
	if mimeType == "" || strings.EqualFold(mimeType, "application/octet-stream") {
		mimeType = sniffMime(raw)
	}
	lowerMime := strings.ToLower(mimeType)
	span.SetAttributes(attribute.String("file.mime", mimeType))

	switch {
	case strings.EqualFold(filepath.Ext(name), ".docx"):
		if e.docx == nil {
			return ai.SubmissionContent{}, e.fail(span, name, fmt.Errorf("no docx converter configured"))
		}
		text, err := e.docx.ConvertToText(ctx, raw)
		if err != nil {
			return ai.SubmissionContent{}, e.fail(span, name, fmt.Errorf("convert docx: %w", err))
		}
		return ai.SubmissionContent{Kind: ai.ContentKindText, MimeType: textMimeType, Data: text}, nil

	case lowerMime == "application/pdf" || strings.HasPrefix(lowerMime, "image/"):
		return ai.SubmissionContent{
			Kind:     ai.ContentKindBinary,
			MimeType: lowerMime,
			Data:     base64.StdEncoding.EncodeToString(raw),
		}, nil

	default:
		return ai.SubmissionContent{
			Kind:     ai.ContentKindText,
			MimeType: textMimeType,
			Data:     strings.ToValidUTF8(string(raw), "�"),
		}, nil
	}
}

func (e *contentExtractor) fail(span trace.Span, name string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "extraction failed")
	e.logger.Warn().Err(err).Str("file_name", name).Msg("failed to extract submission content")
	return &ExtractionError{FileName: name, Err: err}
}

func readAll(file models.SubmissionFile) ([]byte, error) {
	handle, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, handle); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return buf.Bytes(), nil
}

// sniffMime only fills in a type the uploader did not declare; mimetype
// reports parameters such as charset which are dropped here.
func sniffMime(raw []byte) string {
	detected := mimetype.Detect(raw).String()
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return strings.ToLower(strings.TrimSpace(detected))
}
