package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const validResponse = `{"score": 78, "summary": "Clear answer.", "feedback": "Good use of examples; expand the conclusion.", "breakdown": {"understanding": 80, "logic": 75, "completeness": 78}}`

func TestResponseParserAcceptsValidJSON(t *testing.T) {
	result, err := newResponseParser(false).parse(validResponse)
	require.NoError(t, err)
	require.Equal(t, GradingResult{
		Score:     78,
		Summary:   "Clear answer.",
		Feedback:  "Good use of examples; expand the conclusion.",
		Breakdown: GradingBreakdown{Understanding: 80, Logic: 75, Completeness: 78},
	}, result)
	require.True(t, result.Passed())
}

func TestResponseParserStripsSurroundingText(t *testing.T) {
	wrapped := "Here is the grade:\n```json\n" + validResponse + "\n```"
	result, err := newResponseParser(false).parse(wrapped)
	require.NoError(t, err)
	require.Equal(t, float64(78), result.Score)
}

func TestResponseParserRejectsInvalidResponses(t *testing.T) {
	cases := map[string]string{
		"empty":             "   ",
		"not json":          "I cannot grade this.",
		"broken json":       `{"score": 78, "summary": }`,
		"missing logic":     `{"score": 78, "summary": "s", "feedback": "f", "breakdown": {"understanding": 80, "completeness": 78}}`,
		"missing breakdown": `{"score": 78, "summary": "s", "feedback": "f"}`,
		"string score":      `{"score": "high", "summary": "s", "feedback": "f", "breakdown": {"understanding": 80, "logic": 75, "completeness": 78}}`,
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newResponseParser(false).parse(text)
			require.Error(t, err)
		})
	}
}

func TestResponseParserSanitizesAndClamps(t *testing.T) {
	text := `{"score": 140, "summary": "<b>Great</b> work<script>alert(1)</script>", "feedback": "<i>Keep going</i>", "breakdown": {"understanding": 120, "logic": -5, "completeness": 90}}`
	result, err := newResponseParser(false).parse(text)
	require.NoError(t, err)
	require.Equal(t, float64(100), result.Score)
	require.Equal(t, "Great work", result.Summary)
	require.Equal(t, "Keep going", result.Feedback)
	require.Equal(t, GradingBreakdown{Understanding: 100, Logic: 0, Completeness: 90}, result.Breakdown)
}

func TestResponseParserRecomputesScore(t *testing.T) {
	text := `{"score": 10, "summary": "s", "feedback": "f", "breakdown": {"understanding": 90, "logic": 80, "completeness": 70}}`

	trusted, err := newResponseParser(false).parse(text)
	require.NoError(t, err)
	require.Equal(t, float64(10), trusted.Score)

	recomputed, err := newResponseParser(true).parse(text)
	require.NoError(t, err)
	require.InDelta(t, 81.0, recomputed.Score, 0.0001)
}

func TestValidateContent(t *testing.T) {
	err := validateContent("stub", SubmissionContent{Kind: ContentKindText, Data: " \n\t"})
	require.ErrorIs(t, err, ErrMalformedSubmission)
	require.Equal(t, "invalid submission data provided", err.Error())

	err = validateContent("stub", SubmissionContent{Kind: ContentKindBinary, Data: "AAAA"})
	require.ErrorIs(t, err, ErrMalformedSubmission)

	require.NoError(t, validateContent("stub", SubmissionContent{Kind: ContentKindBinary, MimeType: "image/png", Data: "AAAA"}))
}

func TestGradingErrorMatchesReasonAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := oracleFailure("openai", cause)

	require.ErrorIs(t, err, ErrOracleFailure)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrMalformedSubmission)

	var gradingErr *GradingError
	require.ErrorAs(t, err, &gradingErr)
	require.Equal(t, "openai", gradingErr.Provider)
}

func TestGradingResultPassedThreshold(t *testing.T) {
	cases := map[float64]bool{
		0:    false,
		59.9: false,
		60:   true,
		64:   true,
		100:  true,
	}

	for score, expected := range cases {
		require.Equal(t, expected, GradingResult{Score: score}.Passed(), "score %v", score)
	}
}
