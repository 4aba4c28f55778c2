package service

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	unknownStudentID   = "N/A"
	unknownStudentName = "Unknown"
	unnamedStudent     = "Unknown Student"
)

var (
	studentIDPattern  = regexp.MustCompile(`\d{4,}`)
	separatorReplacer = strings.NewReplacer("_", " ", "-", " ")
)

// StudentIdentity is a best-effort guess at who submitted a file. It is
// derived from the file name only and is never validated.
type StudentIdentity struct {
	ID   string
	Name string
}

// ParseStudentFilename guesses a student id and name from a file name such as
// "Jane_Doe_2024123.docx". The first run of four or more digits is the id.
func ParseStudentFilename(filename string) StudentIdentity {
	base := filename
	if ext := filepath.Ext(filename); ext != "" {
		base = strings.TrimSuffix(filename, ext)
	}

	id := studentIDPattern.FindString(base)

	name := base
	if id != "" {
		name = strings.Replace(name, id, "", 1)
	}
	name = separatorReplacer.Replace(name)
	name = strings.Join(strings.Fields(name), " ")

	switch {
	case id == "" && name == "":
		name = base
	case id != "" && name == "":
		name = unnamedStudent
	}

	if id == "" {
		id = unknownStudentID
	}
	if name == "" {
		name = unknownStudentName
	}

	return StudentIdentity{ID: id, Name: name}
}
