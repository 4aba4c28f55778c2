package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAcceptedSubmission(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		accepted    bool
	}{
		{name: "essay.pdf", accepted: true},
		{name: "notes.TXT", accepted: true},
		{name: "README.md", accepted: true},
		{name: "legacy.doc", accepted: true},
		{name: "report.docx", contentType: "application/octet-stream", accepted: true},
		{name: "scan.jpeg", contentType: "image/jpeg", accepted: true},
		{name: "photo", contentType: " Image/PNG", accepted: true},
		{name: "archive.zip", contentType: "application/zip", accepted: false},
		{name: "song.mp3", contentType: "audio/mpeg", accepted: false},
		{name: "script.sh", accepted: false},
		{name: "noext", accepted: false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.accepted, IsAcceptedSubmission(tc.name, tc.contentType), tc.name)
	}
}
