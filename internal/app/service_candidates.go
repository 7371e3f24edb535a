package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cabinet/api/internal/events"
	"cabinet/api/internal/export"
	"cabinet/api/internal/paginate"
	"cabinet/api/internal/storage"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/upload"
	"cabinet/api/internal/util"
	"cabinet/api/internal/validate"
)

type IDInput struct {
	ID string `json:"id" validate:"required,uuid"`
}

type CandidateRefInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
}

type ListCandidatesInput struct {
	Cursor   *string `json:"cursor"`
	Limit    int     `json:"limit" validate:"omitempty,min=1,max=100"`
	Search   string  `json:"search" validate:"omitempty,max=100"`
	City     string  `json:"city" validate:"omitempty,max=80"`
	Language string  `json:"language" validate:"omitempty,max=50"`
	TagID    string  `json:"tagId" validate:"omitempty,uuid"`
}

func (s *Service) ListCandidates(ctx context.Context, scope tenant.Scope, in ListCandidatesInput) (paginate.Page[store.CandidateListItem], error) {
	return s.store.ListCandidates(ctx, scope, store.CandidateFilter{
		Search:   strings.TrimSpace(in.Search),
		City:     strings.TrimSpace(in.City),
		Language: strings.TrimSpace(in.Language),
		TagID:    in.TagID,
	}, paginate.NewCursor(in.Cursor, in.Limit))
}

type CreateCandidateInput struct {
	FirstName   string  `json:"firstName" validate:"notblank,max=80"`
	LastName    string  `json:"lastName" validate:"notblank,max=80"`
	Title       *string `json:"title" validate:"omitempty,max=120"`
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
	City        *string `json:"city" validate:"omitempty,max=80"`
	LinkedinURL *string `json:"linkedinUrl" validate:"omitempty,url,max=500"`
	Summary     *string `json:"summary" validate:"omitempty,max=5000"`
}

func (s *Service) CreateCandidate(ctx context.Context, scope tenant.Scope, in CreateCandidateInput) (store.Candidate, error) {
	c, err := s.store.CreateCandidate(ctx, scope, store.CandidateFields{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Title:       clean(in.Title),
		Email:       clean(in.Email),
		Phone:       clean(in.Phone),
		City:        clean(in.City),
		LinkedinURL: clean(in.LinkedinURL),
		Summary:     clean(in.Summary),
	})
	if err != nil {
		return store.Candidate{}, err
	}
	s.emit(ctx, events.CandidateCreated, scope, c.ID)
	return c, nil
}

// UpdateCandidateInput: an omitted field is left alone, an explicit null
// clears it.
type UpdateCandidateInput struct {
	ID          string                    `json:"id" validate:"required,uuid"`
	FirstName   validate.Optional[string] `json:"firstName" validate:"omitempty,max=80"`
	LastName    validate.Optional[string] `json:"lastName" validate:"omitempty,max=80"`
	Title       validate.Optional[string] `json:"title" validate:"omitempty,max=120"`
	Email       validate.Optional[string] `json:"email" validate:"omitempty,email,max=254"`
	Phone       validate.Optional[string] `json:"phone" validate:"omitempty,max=30"`
	City        validate.Optional[string] `json:"city" validate:"omitempty,max=80"`
	LinkedinURL validate.Optional[string] `json:"linkedinUrl" validate:"omitempty,url,max=500"`
	Summary     validate.Optional[string] `json:"summary" validate:"omitempty,max=5000"`
}

func (in UpdateCandidateInput) Check() []validate.FieldError {
	return append(validate.NotCleared(in.FirstName, "firstName"), validate.NotCleared(in.LastName, "lastName")...)
}

func (s *Service) UpdateCandidate(ctx context.Context, scope tenant.Scope, in UpdateCandidateInput) (store.Candidate, error) {
	var changes store.Changes
	changes = setText(changes, "first_name", in.FirstName)
	changes = setText(changes, "last_name", in.LastName)
	changes = setText(changes, "title", in.Title)
	changes = setText(changes, "email", in.Email)
	changes = setText(changes, "phone", in.Phone)
	changes = setText(changes, "city", in.City)
	changes = setText(changes, "linkedin_url", in.LinkedinURL)
	changes = setText(changes, "summary", in.Summary)
	return s.store.UpdateCandidate(ctx, scope, in.ID, changes)
}

// setText appends a change for a present field. Null and blank both clear.
func setText(changes store.Changes, column string, field validate.Optional[string]) store.Changes {
	if !field.Set {
		return changes
	}
	if value := clean(field.Ptr()); value != nil {
		return changes.Set(column, *value)
	}
	return changes.Set(column, nil)
}

// DeleteCandidate removes the row first; stored files are removed after,
// best effort.
func (s *Service) DeleteCandidate(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	c, err := s.store.DeleteCandidate(ctx, scope, in.ID)
	if err != nil {
		return Success{}, err
	}
	s.removeObject(ctx, c.PhotoKey)
	s.removeObject(ctx, c.CVKey)
	s.emit(ctx, events.CandidateDeleted, scope, c.ID)
	return succeeded, nil
}

type CandidateView struct {
	store.CandidateDetail
	PhotoURL *string `json:"photoUrl"`
	CVURL    *string `json:"cvUrl"`
}

func (s *Service) GetCandidate(ctx context.Context, scope tenant.Scope, in IDInput) (CandidateView, error) {
	detail, err := s.store.GetCandidateDetail(ctx, scope, in.ID)
	if err != nil {
		return CandidateView{}, err
	}
	return CandidateView{
		CandidateDetail: detail,
		PhotoURL:        s.signedURL(ctx, detail.PhotoKey),
		CVURL:           s.signedURL(ctx, detail.CVKey),
	}, nil
}

// signedURL is best effort: a storage outage hides the file, it does not fail
// the read.
func (s *Service) signedURL(ctx context.Context, key *string) *string {
	if key == nil {
		return nil
	}
	url, err := s.urls.URL(ctx, *key)
	if err != nil {
		logWarn(ctx, err, "presign object")
		return nil
	}
	return &url
}

func (s *Service) removeObject(ctx context.Context, key *string) {
	if key == nil {
		return
	}
	s.urls.Forget(*key)
	if err := s.objects.Remove(ctx, *key); err != nil {
		logWarn(ctx, err, "remove object")
	}
}

type UploadPhotoInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	Data        string `json:"data" validate:"required"`
	MimeType    string `json:"mimeType" validate:"required"`
}

type UploadResult struct {
	URL *string `json:"url"`
}

func (s *Service) UploadPhoto(ctx context.Context, scope tenant.Scope, in UploadPhotoInput) (UploadResult, error) {
	if _, err := s.store.GetCandidate(ctx, scope, in.CandidateID); err != nil {
		return UploadResult{}, err
	}
	file, err := upload.Decode(upload.Photo, in.Data, in.MimeType)
	if err != nil {
		return UploadResult{}, uploadError(upload.Photo, err)
	}
	key := storage.PhotoKey(scope.CompanyID(), in.CandidateID, util.NewToken(8), file.Extension)
	if err := s.objects.Put(ctx, key, file.Data, file.ContentType); err != nil {
		return UploadResult{}, fmt.Errorf("put photo: %w", storage.Unavailable(err))
	}
	previous, err := s.store.SetCandidatePhoto(ctx, scope, in.CandidateID, &key)
	if err != nil {
		s.removeObject(ctx, &key)
		return UploadResult{}, err
	}
	s.removeObject(ctx, previous)
	s.metrics.Uploaded(upload.Photo.Name, len(file.Data))
	return UploadResult{URL: s.signedURL(ctx, &key)}, nil
}

type UploadCVInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	Data        string `json:"data" validate:"required"`
	MimeType    string `json:"mimeType" validate:"required"`
	FileName    string `json:"fileName" validate:"notblank,max=255"`
}

func (s *Service) UploadCV(ctx context.Context, scope tenant.Scope, in UploadCVInput) (UploadResult, error) {
	if _, err := s.store.GetCandidate(ctx, scope, in.CandidateID); err != nil {
		return UploadResult{}, err
	}
	file, err := upload.Decode(upload.Document, in.Data, in.MimeType)
	if err != nil {
		return UploadResult{}, uploadError(upload.Document, err)
	}
	key := storage.CVKey(scope.CompanyID(), in.CandidateID, util.NewToken(8), file.Extension)
	if err := s.objects.Put(ctx, key, file.Data, file.ContentType); err != nil {
		return UploadResult{}, fmt.Errorf("put cv: %w", storage.Unavailable(err))
	}
	fileName := strings.TrimSpace(in.FileName)
	previous, err := s.store.SetCandidateCV(ctx, scope, in.CandidateID, &key, &fileName)
	if err != nil {
		s.removeObject(ctx, &key)
		return UploadResult{}, err
	}
	s.removeObject(ctx, previous)
	s.metrics.Uploaded(upload.Document.Name, len(file.Data))
	return UploadResult{URL: s.signedURL(ctx, &key)}, nil
}

func (s *Service) DeleteCV(ctx context.Context, scope tenant.Scope, in CandidateRefInput) (Success, error) {
	previous, err := s.store.SetCandidateCV(ctx, scope, in.CandidateID, nil, nil)
	if err != nil {
		return Success{}, err
	}
	s.removeObject(ctx, previous)
	return succeeded, nil
}

func uploadError(class upload.Class, err error) error {
	if errors.Is(err, upload.ErrTooLarge) {
		return errBadRequest(fmt.Sprintf("Le fichier ne doit pas dépasser %d Mo.", class.MaxMegabytes()))
	}
	return err
}

type AddLanguageInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	Name        string `json:"name" validate:"notblank,max=50"`
	Level       string `json:"level" validate:"required,oneof=BEGINNER INTERMEDIATE ADVANCED FLUENT NATIVE"`
}

func (s *Service) AddLanguage(ctx context.Context, scope tenant.Scope, in AddLanguageInput) (store.Language, error) {
	return s.store.AddLanguage(ctx, scope, in.CandidateID, strings.TrimSpace(in.Name), in.Level)
}

func (s *Service) RemoveLanguage(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	if err := s.store.RemoveLanguage(ctx, scope, in.ID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

type AddTagInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	Name        string `json:"name" validate:"notblank,max=40"`
}

func (s *Service) AddTag(ctx context.Context, scope tenant.Scope, in AddTagInput) (store.Tag, error) {
	return s.store.AddTag(ctx, scope, in.CandidateID, strings.TrimSpace(in.Name))
}

type RemoveTagInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	TagID       string `json:"tagId" validate:"required,uuid"`
}

func (s *Service) RemoveTag(ctx context.Context, scope tenant.Scope, in RemoveTagInput) (Success, error) {
	if err := s.store.RemoveTag(ctx, scope, in.CandidateID, in.TagID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

func (s *Service) ListTags(ctx context.Context, scope tenant.Scope, _ struct{}) ([]store.Tag, error) {
	return s.store.ListTags(ctx, scope)
}

type ExperienceInput struct {
	Title       string         `json:"title" validate:"notblank,max=120"`
	Company     string         `json:"company" validate:"notblank,max=120"`
	StartDate   validate.Date  `json:"startDate" validate:"required"`
	EndDate     *validate.Date `json:"endDate"`
	Description *string        `json:"description" validate:"omitempty,max=2000"`
}

func (in ExperienceInput) Check() []validate.FieldError {
	return validate.DateRange(in.StartDate.Time, dateTime(in.EndDate), "endDate")
}

func (in ExperienceInput) fields() store.ExperienceFields {
	return store.ExperienceFields{
		Title:       strings.TrimSpace(in.Title),
		Company:     strings.TrimSpace(in.Company),
		StartDate:   in.StartDate.Time,
		EndDate:     dateTime(in.EndDate),
		Description: clean(in.Description),
	}
}

type AddExperienceInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	ExperienceInput
}

type UpdateExperienceInput struct {
	ID string `json:"id" validate:"required,uuid"`
	ExperienceInput
}

func (s *Service) AddExperience(ctx context.Context, scope tenant.Scope, in AddExperienceInput) (store.Experience, error) {
	return s.store.AddExperience(ctx, scope, in.CandidateID, in.fields())
}

func (s *Service) UpdateExperience(ctx context.Context, scope tenant.Scope, in UpdateExperienceInput) (store.Experience, error) {
	return s.store.UpdateExperience(ctx, scope, in.ID, in.fields())
}

func (s *Service) DeleteExperience(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	if err := s.store.DeleteExperience(ctx, scope, in.ID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

type FormationInput struct {
	Degree    string         `json:"degree" validate:"notblank,max=120"`
	Field     *string        `json:"field" validate:"omitempty,max=120"`
	School    string         `json:"school" validate:"notblank,max=120"`
	StartDate validate.Date  `json:"startDate" validate:"required"`
	EndDate   *validate.Date `json:"endDate"`
}

func (in FormationInput) Check() []validate.FieldError {
	return validate.DateRange(in.StartDate.Time, dateTime(in.EndDate), "endDate")
}

func (in FormationInput) fields() store.FormationFields {
	return store.FormationFields{
		Degree:    strings.TrimSpace(in.Degree),
		Field:     clean(in.Field),
		School:    strings.TrimSpace(in.School),
		StartDate: in.StartDate.Time,
		EndDate:   dateTime(in.EndDate),
	}
}

type AddFormationInput struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
	FormationInput
}

type UpdateFormationInput struct {
	ID string `json:"id" validate:"required,uuid"`
	FormationInput
}

func (s *Service) AddFormation(ctx context.Context, scope tenant.Scope, in AddFormationInput) (store.Formation, error) {
	return s.store.AddFormation(ctx, scope, in.CandidateID, in.fields())
}

func (s *Service) UpdateFormation(ctx context.Context, scope tenant.Scope, in UpdateFormationInput) (store.Formation, error) {
	return s.store.UpdateFormation(ctx, scope, in.ID, in.fields())
}

func (s *Service) DeleteFormation(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	if err := s.store.DeleteFormation(ctx, scope, in.ID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

func dateTime(d *validate.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (s *Service) ListDistinctCities(ctx context.Context, scope tenant.Scope, _ struct{}) ([]string, error) {
	return s.store.ListDistinctCities(ctx, scope)
}

func (s *Service) ListDistinctLanguageNames(ctx context.Context, scope tenant.Scope, _ struct{}) ([]string, error) {
	return s.store.ListDistinctLanguageNames(ctx, scope)
}

type ExportDossierInput struct {
	CandidateID  string `json:"candidateId" validate:"required,uuid"`
	Format       string `json:"format" validate:"required,oneof=html pdf"`
	IncludeNotes bool   `json:"includeNotes"`
}

type ExportedFile struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (s *Service) ExportDossier(ctx context.Context, scope tenant.Scope, in ExportDossierInput) (ExportedFile, error) {
	res, err := s.exporter.Export(ctx, scope, export.Request{
		CandidateID:  in.CandidateID,
		Format:       export.Format(in.Format),
		IncludeNotes: in.IncludeNotes,
	})
	if err != nil {
		return ExportedFile{}, err
	}
	return ExportedFile{
		FileName: res.Filename,
		MimeType: res.MimeType,
		Data:     base64.StdEncoding.EncodeToString(res.Data),
	}, nil
}
