package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-autograder/pkg/ai"
)

// HistoryItem is a persisted grading result with denormalized display fields.
// Items are append-only.
type HistoryItem struct {
	ID          string                                  `gorm:"primaryKey;size:36" json:"id"`
	Timestamp   time.Time                               `gorm:"index;not null" json:"timestamp"`
	Score       float64                                 `gorm:"not null" json:"score"`
	Summary     string                                  `gorm:"type:text" json:"summary"`
	Feedback    string                                  `gorm:"type:text" json:"feedback"`
	Breakdown   datatypes.JSONType[ai.GradingBreakdown] `json:"breakdown"`
	Snippet     string                                  `gorm:"type:text" json:"snippet"`
	FileName    string                                  `gorm:"size:255" json:"file_name,omitempty"`
	StudentName string                                  `gorm:"size:255" json:"student_name,omitempty"`
	StudentID   string                                  `gorm:"size:64" json:"student_id,omitempty"`
}

// TableName keeps the table name aligned with the stored record name.
func (HistoryItem) TableName() string {
	return "grading_history"
}

// GradingResult rebuilds the grading result stored on the entry.
func (h HistoryItem) GradingResult() ai.GradingResult {
	return ai.GradingResult{
		Score:     h.Score,
		Summary:   h.Summary,
		Feedback:  h.Feedback,
		Breakdown: h.Breakdown.Data(),
	}
}
