package dto

import (
	"time"

	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

// QueueSelectRequest selects the queue item shown in detail.
type QueueSelectRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid4"`
}

// GradingResultResponse serializes a grading result.
type GradingResultResponse struct {
	Score     float64             `json:"score"`
	Summary   string              `json:"summary"`
	Feedback  string              `json:"feedback"`
	Breakdown ai.GradingBreakdown `json:"breakdown"`
	Passed    bool                `json:"passed"`
}

// QueueItemResponse is the read model of one queue item.
type QueueItemResponse struct {
	ID          string                 `json:"id"`
	FileName    string                 `json:"file_name"`
	MimeType    string                 `json:"mime_type"`
	Status      string                 `json:"status"`
	StudentID   string                 `json:"student_id"`
	StudentName string                 `json:"student_name"`
	Result      *GradingResultResponse `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// QueueCounts tallies items per status.
type QueueCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
}

// QueueSnapshotResponse is the full queue state published to observers.
type QueueSnapshotResponse struct {
	Items        []QueueItemResponse `json:"items"`
	IsProcessing bool                `json:"is_processing"`
	SelectedID   string              `json:"selected_id,omitempty"`
	Counts       QueueCounts         `json:"counts"`
}

// QueueStartResponse reports whether a new drain was started.
type QueueStartResponse struct {
	Started bool `json:"started"`
}

// QueueResetResponse reports how many failed items went back to pending.
type QueueResetResponse struct {
	Reset int `json:"reset"`
}

// HistoryItemResponse serializes a stored grading result.
type HistoryItemResponse struct {
	ID          string                `json:"id"`
	Timestamp   time.Time             `json:"timestamp"`
	Snippet     string                `json:"snippet"`
	FileName    string                `json:"file_name,omitempty"`
	StudentName string                `json:"student_name,omitempty"`
	StudentID   string                `json:"student_id,omitempty"`
	Result      GradingResultResponse `json:"result"`
}

// NewGradingResultResponse converts a grading result into a DTO.
func NewGradingResultResponse(result ai.GradingResult) GradingResultResponse {
	return GradingResultResponse{
		Score:     result.Score,
		Summary:   result.Summary,
		Feedback:  result.Feedback,
		Breakdown: result.Breakdown,
		Passed:    result.Passed(),
	}
}

// NewQueueItemResponse converts a queue item into a DTO.
func NewQueueItemResponse(item models.QueueItem) QueueItemResponse {
	response := QueueItemResponse{
		ID:          item.ID,
		FileName:    item.FileName(),
		Status:      item.Status,
		StudentID:   item.StudentID,
		StudentName: item.StudentName,
		Error:       item.Error,
	}
	if item.File != nil {
		response.MimeType = item.File.ContentType()
	}
	if item.Result != nil {
		result := NewGradingResultResponse(*item.Result)
		response.Result = &result
	}
	return response
}

// NewQueueSnapshotResponse builds the published queue state.
func NewQueueSnapshotResponse(items []models.QueueItem, processing bool, selectedID string) QueueSnapshotResponse {
	snapshot := QueueSnapshotResponse{
		Items:        make([]QueueItemResponse, 0, len(items)),
		IsProcessing: processing,
		SelectedID:   selectedID,
	}
	for _, item := range items {
		snapshot.Items = append(snapshot.Items, NewQueueItemResponse(item))
		switch item.Status {
		case models.QueueStatusPending:
			snapshot.Counts.Pending++
		case models.QueueStatusProcessing:
			snapshot.Counts.Processing++
		case models.QueueStatusCompleted:
			snapshot.Counts.Completed++
		case models.QueueStatusError:
			snapshot.Counts.Error++
		}
	}
	snapshot.Counts.Total = len(items)
	return snapshot
}

// NewHistoryItemResponse converts a history entry into a DTO.
func NewHistoryItemResponse(item models.HistoryItem) HistoryItemResponse {
	return HistoryItemResponse{
		ID:          item.ID,
		Timestamp:   item.Timestamp,
		Snippet:     item.Snippet,
		FileName:    item.FileName,
		StudentName: item.StudentName,
		StudentID:   item.StudentID,
		Result:      NewGradingResultResponse(item.GradingResult()),
	}
}

// NewHistoryItemResponses converts a slice of history entries.
func NewHistoryItemResponses(items []models.HistoryItem) []HistoryItemResponse {
	responses := make([]HistoryItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewHistoryItemResponse(item))
	}
	return responses
}
