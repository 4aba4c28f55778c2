package dto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func validateAgainst(t *testing.T, schema *jsonschema.Schema, value interface{}) {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)

	var decoded interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, schema.Validate(decoded))
}

func sampleQueue() []models.QueueItem {
	result := ai.GradingResult{
		Score:     55,
		Summary:   "Partially correct.",
		Feedback:  "Revisit the second proof.",
		Breakdown: ai.GradingBreakdown{Understanding: 70, Logic: 60, Completeness: 60},
	}
	return []models.QueueItem{
		{ID: "a", File: models.NewMemoryFile("Jane_Doe_2024123.pdf", "application/pdf", nil), Status: models.QueueStatusCompleted, StudentID: "2024123", StudentName: "Jane Doe", Result: &result},
		{ID: "b", File: models.NewMemoryFile("notes.docx", "", nil), Status: models.QueueStatusError, StudentID: "N/A", StudentName: "notes", Error: "content extraction failed"},
		{ID: "c", File: models.NewMemoryFile("draft.txt", "text/plain", nil), Status: models.QueueStatusProcessing, StudentID: "N/A", StudentName: "draft"},
		{ID: "d", File: models.NewMemoryFile("scan.png", "image/png", nil), Status: models.QueueStatusPending, StudentID: "N/A", StudentName: "scan"},
	}
}

func TestQueueSnapshotContract(t *testing.T) {
	schema := compileSchema(t, "queue_snapshot.schema.json")

	snapshot := dto.NewQueueSnapshotResponse(sampleQueue(), true, "a")
	validateAgainst(t, schema, snapshot)

	require.Equal(t, dto.QueueCounts{Total: 4, Pending: 1, Processing: 1, Completed: 1, Error: 1}, snapshot.Counts)
	require.Equal(t, "application/pdf", snapshot.Items[0].MimeType)
	require.False(t, snapshot.Items[0].Result.Passed)
	require.Nil(t, snapshot.Items[1].Result)

	validateAgainst(t, schema, dto.NewQueueSnapshotResponse(nil, false, ""))
}

func TestQueueSnapshotContractRejectsInconsistentItems(t *testing.T) {
	schema := compileSchema(t, "queue_snapshot.schema.json")

	snapshot := dto.NewQueueSnapshotResponse(sampleQueue(), true, "")
	snapshot.Items[0].Error = "should not be here"

	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Error(t, schema.Validate(decoded))
}

func TestHistoryItemContract(t *testing.T) {
	schema := compileSchema(t, "history_item.schema.json")

	item := models.HistoryItem{
		ID:          "4f1c7a9e-2f6b-4d7e-9a51-0c8f1b6b2d10",
		Timestamp:   time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC),
		Score:       88,
		Summary:     "Strong answer.",
		Feedback:    "Cite one more source.",
		Breakdown:   datatypes.NewJSONType(ai.GradingBreakdown{Understanding: 90, Logic: 85, Completeness: 88}),
		Snippet:     "Photosynthesis converts light energy...",
		FileName:    "Budi_Santoso_20241001.txt",
		StudentName: "Budi Santoso",
		StudentID:   "20241001",
	}

	responses := dto.NewHistoryItemResponses([]models.HistoryItem{item})
	require.Len(t, responses, 1)
	require.True(t, responses[0].Result.Passed)
	require.Equal(t, 85.0, responses[0].Result.Breakdown.Logic)
	validateAgainst(t, schema, responses[0])
}
