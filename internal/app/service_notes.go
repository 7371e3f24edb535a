package app

import (
	"context"
	"encoding/json"
	"strings"

	"cabinet/api/internal/paginate"
	"cabinet/api/internal/policy"
	"cabinet/api/internal/search"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/validate"
)

// NoteView is a note as listed to one caller.
type NoteView struct {
	store.Note
	CanEdit bool `json:"canEdit"`
}

func (s *Service) noteViews(scope tenant.Scope, notes []store.Note) []NoteView {
	out := make([]NoteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteView{
			Note:    n,
			CanEdit: policy.Can(scope, policy.ActionWrite, policy.Resource{CompanyID: n.CompanyID, AuthorID: n.AuthorID}),
		})
	}
	return out
}

type ListNotesInput struct {
	CandidateID string `json:"candidateId" validate:"omitempty,uuid"`
	JobOfferID  string `json:"jobOfferId" validate:"omitempty,uuid"`
}

func (in ListNotesInput) Check() []validate.FieldError {
	if (in.CandidateID == "") == (in.JobOfferID == "") {
		return []validate.FieldError{{Field: "candidateId", Message: "Indiquez un candidat ou une offre."}}
	}
	return nil
}

func (s *Service) ListNotes(ctx context.Context, scope tenant.Scope, in ListNotesInput) ([]NoteView, error) {
	notes, err := s.store.ListNotes(ctx, scope, store.NoteTarget{CandidateID: in.CandidateID, JobOfferID: in.JobOfferID})
	if err != nil {
		return nil, err
	}
	return s.noteViews(scope, notes), nil
}

type ListFreeNotesInput struct {
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit" validate:"omitempty,min=1,max=100"`
}

func (s *Service) ListFreeNotes(ctx context.Context, scope tenant.Scope, in ListFreeNotesInput) (paginate.Page[NoteView], error) {
	page, err := s.store.ListFreeNotes(ctx, scope, paginate.NewCursor(in.Cursor, in.Limit))
	if err != nil {
		return paginate.Page[NoteView]{}, err
	}
	return paginate.Page[NoteView]{
		Items:      s.noteViews(scope, page.Items),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

type CreateNoteInput struct {
	CandidateID *string         `json:"candidateId" validate:"omitempty,uuid"`
	JobOfferID  *string         `json:"jobOfferId" validate:"omitempty,uuid"`
	Content     json.RawMessage `json:"content"`
}

func (in CreateNoteInput) Check() []validate.FieldError {
	fields := validate.RichText(in.Content, "content")
	if in.CandidateID != nil && in.JobOfferID != nil {
		fields = append(fields, validate.FieldError{Field: "jobOfferId", Message: "Une note ne peut viser qu'un candidat ou une offre."})
	}
	return fields
}

func (s *Service) CreateNote(ctx context.Context, scope tenant.Scope, in CreateNoteInput) (NoteView, error) {
	var target store.NoteTarget
	if in.CandidateID != nil {
		target.CandidateID = *in.CandidateID
	}
	if in.JobOfferID != nil {
		target.JobOfferID = *in.JobOfferID
	}
	note, err := s.store.CreateNote(ctx, scope, target, in.Content)
	if err != nil {
		return NoteView{}, err
	}
	return NoteView{Note: note, CanEdit: true}, nil
}

type UpdateNoteInput struct {
	ID      string          `json:"id" validate:"required,uuid"`
	Content json.RawMessage `json:"content"`
}

func (in UpdateNoteInput) Check() []validate.FieldError {
	return validate.RichText(in.Content, "content")
}

// UpdateNote is reserved to the note's author. Another member of the tenant
// gets FORBIDDEN, anyone else NOT_FOUND.
func (s *Service) UpdateNote(ctx context.Context, scope tenant.Scope, in UpdateNoteInput) (NoteView, error) {
	if err := s.authorize(ctx, scope, policy.ActionWrite, in.ID); err != nil {
		return NoteView{}, err
	}
	note, err := s.store.UpdateNoteContent(ctx, scope, in.ID, in.Content)
	if err != nil {
		return NoteView{}, err
	}
	return NoteView{Note: note, CanEdit: true}, nil
}

func (s *Service) DeleteNote(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	if err := s.authorize(ctx, scope, policy.ActionDelete, in.ID); err != nil {
		return Success{}, err
	}
	if err := s.store.DeleteNote(ctx, scope, in.ID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

func (s *Service) authorize(ctx context.Context, scope tenant.Scope, action policy.Action, noteID string) error {
	note, err := s.store.GetNote(ctx, scope, noteID)
	if err != nil {
		return err
	}
	return policy.Check(scope, action, policy.Resource{CompanyID: note.CompanyID, AuthorID: note.AuthorID})
}

type SearchInput struct {
	Query string `json:"query" validate:"notblank,min=2,max=100"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=50"`
}

func (s *Service) Search(ctx context.Context, scope tenant.Scope, in SearchInput) (search.Response, error) {
	return s.search.Search(ctx, scope, search.Query{Text: strings.TrimSpace(in.Query), Limit: in.Limit}), nil
}
