// Package export renders candidate dossiers as HTML or PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	CandidateID  string
	Format       Format
	IncludeNotes bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("export format not supported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// Dossier is the view model handed to the template.
type Dossier struct {
	CompanyName string
	FullName    string
	Title       string
	Email       string
	Phone       string
	City        string
	LinkedinURL string
	Summary     string
	Tags        []string
	Languages   []DossierLanguage
	Experiences []DossierEntry
	Formations  []DossierEntry
	Notes       []DossierNote
	GeneratedAt time.Time
}

type DossierLanguage struct {
	Name  string
	Level string
}

// DossierEntry is one line of the experience or formation history.
type DossierEntry struct {
	Heading     string
	Subheading  string
	Period      string
	Description string
}

type DossierNote struct {
	Author    string
	CreatedAt time.Time
	Body      string
}
