package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetCompany(ctx context.Context, scope tenant.Scope) (store.Company, error)
	GetCandidateDetail(ctx context.Context, scope tenant.Scope, id string) (store.CandidateDetail, error)
	ListNotes(ctx context.Context, scope tenant.Scope, target store.NoteTarget) ([]store.Note, error)
}

type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Service builds candidate dossiers
type Service struct {
	store DataStore
	pdf   PDFRenderer
	now   func() time.Time
}

// NewService creates a new export service. pdf may be nil, in which case PDF
// exports fail with ErrPDFDependencyMissing.
func NewService(store DataStore, pdf PDFRenderer) *Service {
	return &Service{store: store, pdf: pdf, now: time.Now}
}

// Export generates a dossier in the requested format
func (s *Service) Export(ctx context.Context, scope tenant.Scope, req Request) (*Result, error) {
	if req.Format != FormatHTML && req.Format != FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	candidate, err := s.store.GetCandidateDetail(ctx, scope, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	company, err := s.store.GetCompany(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}

	var notes []store.Note
	if req.IncludeNotes {
		notes, err = s.store.ListNotes(ctx, scope, store.NoteTarget{CandidateID: candidate.ID})
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
	}

	dossier := BuildDossier(company.Name, candidate, notes, s.now())
	html, err := RenderDossierHTML(dossier)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	filename := sanitizeFilename(dossier.FullName)
	switch req.Format {
	case FormatPDF:
		if s.pdf == nil {
			return nil, ErrPDFDependencyMissing
		}
		data, err := s.pdf.RenderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: filename + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return &Result{Data: []byte(html), Filename: filename + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}
}

// BuildDossier flattens a candidate and its notes into the template model.
func BuildDossier(companyName string, c store.CandidateDetail, notes []store.Note, now time.Time) Dossier {
	d := Dossier{
		CompanyName: companyName,
		FullName:    strings.TrimSpace(c.FirstName + " " + c.LastName),
		Title:       deref(c.Title),
		Email:       deref(c.Email),
		Phone:       deref(c.Phone),
		City:        deref(c.City),
		LinkedinURL: deref(c.LinkedinURL),
		Summary:     deref(c.Summary),
		GeneratedAt: now,
	}
	for _, t := range c.Tags {
		d.Tags = append(d.Tags, t.Name)
	}
	for _, l := range c.Languages {
		d.Languages = append(d.Languages, DossierLanguage{Name: l.Name, Level: l.Level})
	}
	for _, e := range c.Experiences {
		d.Experiences = append(d.Experiences, DossierEntry{
			Heading:     e.Title,
			Subheading:  e.Company,
			Period:      period(e.StartDate, e.EndDate),
			Description: deref(e.Description),
		})
	}
	for _, f := range c.Formations {
		sub := f.School
		if field := deref(f.Field); field != "" {
			sub = field + ", " + f.School
		}
		d.Formations = append(d.Formations, DossierEntry{
			Heading:    f.Degree,
			Subheading: sub,
			Period:     period(f.StartDate, f.EndDate),
		})
	}
	for _, n := range notes {
		d.Notes = append(d.Notes, DossierNote{
			Author:    n.AuthorName,
			CreatedAt: n.CreatedAt,
			Body:      RichTextToHTML(n.Content),
		})
	}
	return d
}

func period(start time.Time, end *time.Time) string {
	if end == nil {
		return "depuis " + start.Format("01/2006")
	}
	return start.Format("01/2006") + " - " + end.Format("01/2006")
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
