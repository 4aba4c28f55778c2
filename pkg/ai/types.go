package ai

import (
	"context"
	"errors"
	"fmt"
)

// ContentKind distinguishes extracted text from inline binary payloads.
type ContentKind string

const (
	// ContentKindText carries UTF-8 text in Data.
	ContentKindText ContentKind = "text"
	// ContentKindBinary carries base64-encoded bytes in Data.
	ContentKindBinary ContentKind = "binary"
)

// PassingScore is the lowest score shown as a pass.
const PassingScore = 60

// SubmissionContent is the normalized payload sent to a grader.
type SubmissionContent struct {
	Kind     ContentKind `json:"kind"`
	MimeType string      `json:"mime_type"`
	Data     string      `json:"data"`
}

// GradingBreakdown holds the three rubric sub-scores, each in [0, 100].
type GradingBreakdown struct {
	Understanding float64 `json:"understanding"`
	Logic         float64 `json:"logic"`
	Completeness  float64 `json:"completeness"`
}

// WeightedScore applies the rubric weights (40/30/30) to the breakdown.
func (b GradingBreakdown) WeightedScore() float64 {
	return 0.4*b.Understanding + 0.3*b.Logic + 0.3*b.Completeness
}

// GradingResult is the structured outcome returned by a grader.
type GradingResult struct {
	Score     float64          `json:"score"`
	Summary   string           `json:"summary"`
	Feedback  string           `json:"feedback"`
	Breakdown GradingBreakdown `json:"breakdown"`
}

// Passed reports whether the score reaches PassingScore.
func (r GradingResult) Passed() bool {
	return r.Score >= PassingScore
}

// Grader sends a submission to an external model and returns its grade.
type Grader interface {
	Grade(ctx context.Context, content SubmissionContent) (GradingResult, error)
}

var (
	// ErrMalformedSubmission indicates the payload was empty; no request was sent.
	ErrMalformedSubmission = errors.New("invalid submission data provided")
	// ErrOracleFailure indicates the model call failed or returned an unusable response.
	ErrOracleFailure = errors.New("grading request failed")
)

// GradingError describes why a single grading call failed.
type GradingError struct {
	Provider string
	Reason   error
	Err      error
}

func (e *GradingError) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *GradingError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func malformed(provider string, err error) error {
	return &GradingError{Provider: provider, Reason: ErrMalformedSubmission, Err: err}
}

func oracleFailure(provider string, err error) error {
	return &GradingError{Provider: provider, Reason: ErrOracleFailure, Err: err}
}
