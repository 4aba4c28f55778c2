package ai

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const systemInstruction = `You are an expert academic grader and teaching assistant known for precision, fairness, and constructive feedback.

Your Task:
Analyze the student's homework assignment provided.
Assign a score (0-100) and provide a brief, actionable comment.

Grading Criteria (Standardized):
1. Understanding (40%): Does the student demonstrate a clear grasp of the core concepts?
2. Logic & Structure (30%): Is the argument or solution presented logically and coherently?
3. Completeness (30%): Did the student answer all parts of the question?

Output Requirement:
Return the result strictly in JSON format with the fields score, summary, feedback and breakdown.
The 'score' must be the weighted average of the three criteria.
Include a 'breakdown' object with individual scores (0-100) for 'understanding', 'logic', and 'completeness'.
The 'summary' is a 1-2 sentence summary of performance; the 'feedback' is constructive criticism and praise (30-50 words).`

const (
	fileInstruction  = "Please grade this homework assignment based on the provided file."
	textLabel        = "Here is the content of the homework assignment:"
	textInstruction  = "Please grade this content."
	schemaResourceID = "https://schemas.gema.local/grading_result.schema.json"
)

//go:embed schema/grading_result.schema.json
var gradingResultSchema string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// SystemInstruction returns the rubric prompt shared by all providers.
func SystemInstruction() string {
	return systemInstruction
}

// ResponseSchema returns the JSON schema every oracle response must satisfy.
func ResponseSchema() string {
	return gradingResultSchema
}

func validateContent(provider string, content SubmissionContent) error {
	if strings.TrimSpace(content.Data) == "" {
		return malformed(provider, nil)
	}
	if content.Kind != ContentKindText && content.Kind != ContentKindBinary {
		return malformed(provider, fmt.Errorf("unknown content kind %q", content.Kind))
	}
	if content.Kind == ContentKindBinary && content.MimeType == "" {
		return malformed(provider, errors.New("binary submission without mime type"))
	}
	return nil
}

func responseSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaResourceID, strings.NewReader(gradingResultSchema)); err != nil {
			schemaErr = fmt.Errorf("load grading schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaResourceID)
	})
	return compiledSchema, schemaErr
}

// responseParser turns oracle text into a validated GradingResult.
type responseParser struct {
	sanitizer      *bluemonday.Policy
	recomputeScore bool
}

func newResponseParser(recomputeScore bool) responseParser {
	return responseParser{
		sanitizer:      bluemonday.StrictPolicy(),
		recomputeScore: recomputeScore,
	}
}

func (p responseParser) parse(text string) (GradingResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return GradingResult{}, errors.New("no response text received from model")
	}

	body, err := extractJSONObject(text)
	if err != nil {
		return GradingResult{}, err
	}

	schema, err := responseSchema()
	if err != nil {
		return GradingResult{}, err
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(body)))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return GradingResult{}, fmt.Errorf("grading response does not match schema: %w", err)
	}

	var result GradingResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}

	result.Summary = strings.TrimSpace(p.sanitizer.Sanitize(result.Summary))
	result.Feedback = strings.TrimSpace(p.sanitizer.Sanitize(result.Feedback))
	result.Breakdown.Understanding = clampScore(result.Breakdown.Understanding)
	result.Breakdown.Logic = clampScore(result.Breakdown.Logic)
	result.Breakdown.Completeness = clampScore(result.Breakdown.Completeness)
	if p.recomputeScore {
		result.Score = result.Breakdown.WeightedScore()
	}
	result.Score = clampScore(result.Score)

	return result, nil
}

// extractJSONObject returns the span between the first '{' and the last '}'.
// Models occasionally wrap the object in prose or markdown fences.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", errors.New("no JSON object found in response")
	}
	return s[start : end+1], nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
