package models

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/noah-isme/gema-autograder/pkg/ai"
)

const (
	// QueueStatusPending marks an item waiting for a drain.
	QueueStatusPending = "pending"
	// QueueStatusProcessing marks the item currently being extracted and graded.
	QueueStatusProcessing = "processing"
	// QueueStatusCompleted marks an item with an attached grading result.
	QueueStatusCompleted = "completed"
	// QueueStatusError marks an item whose extraction or grading failed.
	QueueStatusError = "error"
)

// SubmissionFile is a handle to an uploaded file. The grading core only reads it.
type SubmissionFile interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

var acceptedExtensions = map[string]struct{}{
	".pdf":  {},
	".txt":  {},
	".md":   {},
	".doc":  {},
	".docx": {},
}

// IsAcceptedSubmission reports whether a file may be queued: any image
// content type, or one of the document extensions.
func IsAcceptedSubmission(name, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return true
	}
	_, ok := acceptedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// QueueItem is one student submission moving through extraction and grading.
// Result is set only when Status is completed, Error only when Status is error.
type QueueItem struct {
	ID          string
	File        SubmissionFile
	Status      string
	StudentID   string
	StudentName string
	Result      *ai.GradingResult
	Error       string
}

// IsTerminal reports whether the item reached completed or error.
func (q QueueItem) IsTerminal() bool {
	return q.Status == QueueStatusCompleted || q.Status == QueueStatusError
}

// FileName returns the declared name of the underlying file.
func (q QueueItem) FileName() string {
	if q.File == nil {
		return ""
	}
	return q.File.Name()
}

// MemoryFile is a SubmissionFile backed by a byte slice.
type MemoryFile struct {
	name        string
	contentType string
	data        []byte
}

// NewMemoryFile wraps already-read upload bytes.
func NewMemoryFile(name, contentType string, data []byte) *MemoryFile {
	return &MemoryFile{name: name, contentType: contentType, data: data}
}

func (f *MemoryFile) Name() string        { return f.name }
func (f *MemoryFile) ContentType() string { return f.contentType }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// DiskFile is a SubmissionFile read lazily from the local filesystem.
type DiskFile struct {
	path        string
	contentType string
}

// NewDiskFile references a file on disk; it is not opened until grading.
func NewDiskFile(path, contentType string) *DiskFile {
	return &DiskFile{path: path, contentType: contentType}
}

func (f *DiskFile) Name() string        { return filepath.Base(f.path) }
func (f *DiskFile) ContentType() string { return f.contentType }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
