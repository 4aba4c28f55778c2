package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string          `json:"name"`
			Strict bool            `json:"strict"`
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func newOpenAIServer(t *testing.T, content string, calls *int32, captured *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if captured != nil {
			var raw json.RawMessage
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			*captured = raw
		}

		payload := map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gemini-2.5-flash",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func newTestOpenAIGrader(t *testing.T, baseURL string) *OpenAIGrader {
	t.Helper()
	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "test-key", BaseURL: baseURL + "/v1/", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return grader
}

func TestOpenAIGraderGradesText(t *testing.T) {
	var calls int32
	var captured []byte
	server := newOpenAIServer(t, validResponse, &calls, &captured)
	defer server.Close()

	result, err := newTestOpenAIGrader(t, server.URL).Grade(context.Background(), SubmissionContent{
		Kind:     ContentKindText,
		MimeType: "text/plain",
		Data:     "The answer is 42.",
	})
	require.NoError(t, err)
	require.Equal(t, float64(78), result.Score)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var request chatRequest
	require.NoError(t, json.Unmarshal(captured, &request))
	require.Equal(t, "gemini-2.5-flash", request.Model)
	require.Len(t, request.Messages, 2)
	require.Equal(t, "system", request.Messages[0].Role)
	var system string
	require.NoError(t, json.Unmarshal(request.Messages[0].Content, &system))
	require.Contains(t, system, "Understanding (40%)")
	require.Equal(t, "json_schema", request.ResponseFormat.Type)
	require.Equal(t, "grading_result", request.ResponseFormat.JSONSchema.Name)
	require.True(t, request.ResponseFormat.JSONSchema.Strict)

	body := string(captured)
	require.Contains(t, body, textLabel)
	require.Contains(t, body, "The answer is 42.")
	require.Contains(t, body, textInstruction)
}

func TestOpenAIGraderSendsBinaryInline(t *testing.T) {
	var calls int32
	var captured []byte
	server := newOpenAIServer(t, validResponse, &calls, &captured)
	defer server.Close()

	_, err := newTestOpenAIGrader(t, server.URL).Grade(context.Background(), SubmissionContent{
		Kind:     ContentKindBinary,
		MimeType: "application/pdf",
		Data:     "JVBERi0xLjQ=",
	})
	require.NoError(t, err)

	body := string(captured)
	require.Contains(t, body, "data:application/pdf;base64,JVBERi0xLjQ=")
	require.Contains(t, body, fileInstruction)
}

func TestOpenAIGraderMissingFieldIsOracleFailure(t *testing.T) {
	var calls int32
	server := newOpenAIServer(t, `{"score": 70, "summary": "s", "feedback": "f", "breakdown": {"understanding": 70, "completeness": 70}}`, &calls, nil)
	defer server.Close()

	_, err := newTestOpenAIGrader(t, server.URL).Grade(context.Background(), SubmissionContent{Kind: ContentKindText, Data: "essay"})
	require.ErrorIs(t, err, ErrOracleFailure)
	require.Contains(t, err.Error(), "logic")
}

func TestOpenAIGraderTransportErrorIsOracleFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestOpenAIGrader(t, server.URL).Grade(context.Background(), SubmissionContent{Kind: ContentKindText, Data: "essay"})
	require.ErrorIs(t, err, ErrOracleFailure)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestOpenAIGraderEmptyPayloadMakesNoCall(t *testing.T) {
	var calls int32
	server := newOpenAIServer(t, validResponse, &calls, nil)
	defer server.Close()

	_, err := newTestOpenAIGrader(t, server.URL).Grade(context.Background(), SubmissionContent{Kind: ContentKindText, Data: ""})
	require.ErrorIs(t, err, ErrMalformedSubmission)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestNewGraderSelectsProvider(t *testing.T) {
	grader, err := NewGrader(ProviderConfig{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &OpenAIGrader{}, grader)

	grader, err = NewGrader(ProviderConfig{Provider: "Anthropic", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &AnthropicGrader{}, grader)

	_, err = NewGrader(ProviderConfig{Provider: "local-llm", APIKey: "k"})
	require.Error(t, err)

	_, err = NewGrader(ProviderConfig{Provider: "openai"})
	require.Error(t, err)
}
