package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmissionFilesRejectsUnsupportedTypes(t *testing.T) {
	dir := t.TempDir()
	essay := filepath.Join(dir, "Jane_Doe_2024123.pdf")
	archive := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(essay, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(archive, []byte("PK\x03\x04"), 0o644))

	_, err := submissionFiles([]string{essay, archive})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file type")
	require.Contains(t, err.Error(), "bundle.zip")
}

func TestSubmissionFilesAcceptsDocumentsAndImages(t *testing.T) {
	dir := t.TempDir()
	essay := filepath.Join(dir, "Jane_Doe_2024123.pdf")
	scan := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(essay, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(scan, []byte("\x89PNG\r\n\x1a\n"), 0o644))

	files, err := submissionFiles([]string{essay, scan})
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "Jane_Doe_2024123.pdf", files[0].Name())
	require.Equal(t, "application/pdf", files[0].ContentType())
	require.Equal(t, "image/png", files[1].ContentType())
}

func TestSubmissionFilesRejectsDirectories(t *testing.T) {
	_, err := submissionFiles([]string{t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "is a directory")
}
