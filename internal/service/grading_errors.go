package service

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed indicates a file could not be read or converted.
	ErrExtractionFailed = errors.New("content extraction failed")
	// ErrQueueProcessing indicates the operation is not allowed during a drain.
	ErrQueueProcessing = errors.New("grading queue is processing")
	// ErrQueueItemNotFound indicates the queue item id is unknown.
	ErrQueueItemNotFound = errors.New("queue item not found")
	// ErrHistoryItemNotFound indicates the history entry id is unknown.
	ErrHistoryItemNotFound = errors.New("history item not found")
	// ErrNoFiles indicates an enqueue call without files.
	ErrNoFiles = errors.New("at least one file is required")
)

// ExtractionError reports which file failed to extract and why.
type ExtractionError struct {
	FileName string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.FileName, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}
