package app

import (
	"context"
	"errors"
	"strings"

	"cabinet/api/internal/events"
	"cabinet/api/internal/paginate"
	"cabinet/api/internal/policy"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/validate"
)

type ListClientCompaniesInput struct {
	Search string `json:"search" validate:"omitempty,max=100"`
}

func (s *Service) ListClientCompanies(ctx context.Context, scope tenant.Scope, in ListClientCompaniesInput) ([]store.ClientCompany, error) {
	return s.store.ListClientCompanies(ctx, scope, strings.TrimSpace(in.Search))
}

type CreateClientCompanyInput struct {
	Name    string  `json:"name" validate:"notblank,max=120"`
	Sector  *string `json:"sector" validate:"omitempty,max=80"`
	Website *string `json:"website" validate:"omitempty,url,max=500"`
	City    *string `json:"city" validate:"omitempty,max=80"`
}

func (s *Service) CreateClientCompany(ctx context.Context, scope tenant.Scope, in CreateClientCompanyInput) (store.ClientCompany, error) {
	return s.store.CreateClientCompany(ctx, scope, store.ClientCompanyFields{
		Name:    strings.TrimSpace(in.Name),
		Sector:  clean(in.Sector),
		Website: clean(in.Website),
		City:    clean(in.City),
	})
}

func (s *Service) GetClientCompany(ctx context.Context, scope tenant.Scope, in IDInput) (store.ClientCompanyDetail, error) {
	return s.store.GetClientCompanyDetail(ctx, scope, in.ID)
}

type CreateContactInput struct {
	ClientCompanyID string  `json:"clientCompanyId" validate:"required,uuid"`
	FirstName       string  `json:"firstName" validate:"notblank,max=80"`
	LastName        string  `json:"lastName" validate:"notblank,max=80"`
	Email           *string `json:"email" validate:"omitempty,email,max=254"`
	Phone           *string `json:"phone" validate:"omitempty,max=30"`
	Position        *string `json:"position" validate:"omitempty,max=120"`
}

func (s *Service) CreateContact(ctx context.Context, scope tenant.Scope, in CreateContactInput) (store.Contact, error) {
	return s.store.CreateContact(ctx, scope, in.ClientCompanyID, store.ContactFields{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     clean(in.Email),
		Phone:     clean(in.Phone),
		Position:  clean(in.Position),
	})
}

type UpdateContactInput struct {
	ID        string                    `json:"id" validate:"required,uuid"`
	FirstName validate.Optional[string] `json:"firstName" validate:"omitempty,max=80"`
	LastName  validate.Optional[string] `json:"lastName" validate:"omitempty,max=80"`
	Email     validate.Optional[string] `json:"email" validate:"omitempty,email,max=254"`
	Phone     validate.Optional[string] `json:"phone" validate:"omitempty,max=30"`
	Position  validate.Optional[string] `json:"position" validate:"omitempty,max=120"`
}

func (in UpdateContactInput) Check() []validate.FieldError {
	return append(validate.NotCleared(in.FirstName, "firstName"), validate.NotCleared(in.LastName, "lastName")...)
}

func (s *Service) UpdateContact(ctx context.Context, scope tenant.Scope, in UpdateContactInput) (store.Contact, error) {
	var changes store.Changes
	changes = setText(changes, "first_name", in.FirstName)
	changes = setText(changes, "last_name", in.LastName)
	changes = setText(changes, "email", in.Email)
	changes = setText(changes, "phone", in.Phone)
	changes = setText(changes, "position", in.Position)
	return s.store.UpdateContact(ctx, scope, in.ID, changes)
}

type ListOffersInput struct {
	Page            int    `json:"page" validate:"omitempty,min=1"`
	PageSize        int    `json:"pageSize" validate:"omitempty,min=1,max=100"`
	SortBy          string `json:"sortBy" validate:"omitempty,oneof=createdAt updatedAt title status"`
	SortOrder       string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Status          string `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	ClientCompanyID string `json:"clientCompanyId" validate:"omitempty,uuid"`
	Search          string `json:"search" validate:"omitempty,max=100"`
}

func (s *Service) ListOffers(ctx context.Context, scope tenant.Scope, in ListOffersInput) (paginate.OffsetPage[store.JobOffer], error) {
	page := paginate.Offset{Page: in.Page, PageSize: in.PageSize, SortBy: in.SortBy, SortOrder: in.SortOrder}
	items, total, err := s.store.ListOffers(ctx, scope, store.OfferFilter{
		Status:          in.Status,
		ClientCompanyID: in.ClientCompanyID,
		Search:          strings.TrimSpace(in.Search),
	}, page)
	if err != nil {
		return paginate.OffsetPage[store.JobOffer]{}, err
	}
	return paginate.NewOffsetPage(items, total, page), nil
}

type CreateOfferInput struct {
	Title           string  `json:"title" validate:"notblank,max=160"`
	Description     *string `json:"description" validate:"omitempty,max=10000"`
	Status          string  `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Location        *string `json:"location" validate:"omitempty,max=120"`
	ClientCompanyID *string `json:"clientCompanyId" validate:"omitempty,uuid"`
	ClientContactID *string `json:"clientContactId" validate:"omitempty,uuid"`
}

// CreateOffer refuses links that point outside the tenant or that do not fit
// together; nothing is written in that case.
func (s *Service) CreateOffer(ctx context.Context, scope tenant.Scope, in CreateOfferInput) (store.JobOffer, error) {
	companyID, contactID := clean(in.ClientCompanyID), clean(in.ClientContactID)
	if err := s.checkOfferLinks(ctx, scope, companyID, contactID); err != nil {
		return store.JobOffer{}, err
	}
	status := in.Status
	if status == "" {
		status = store.OfferTodo
	}
	offer, err := s.store.CreateOffer(ctx, scope, store.OfferFields{
		Title:           strings.TrimSpace(in.Title),
		Description:     clean(in.Description),
		Status:          status,
		Location:        clean(in.Location),
		ClientCompanyID: companyID,
		ClientContactID: contactID,
	})
	if err != nil {
		return store.JobOffer{}, err
	}
	s.emit(ctx, events.OfferCreated, scope, offer.ID)
	return offer, nil
}

type UpdateOfferInput struct {
	ID              string                    `json:"id" validate:"required,uuid"`
	Title           validate.Optional[string] `json:"title" validate:"omitempty,max=160"`
	Description     validate.Optional[string] `json:"description" validate:"omitempty,max=10000"`
	Status          validate.Optional[string] `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Location        validate.Optional[string] `json:"location" validate:"omitempty,max=120"`
	ClientCompanyID validate.Optional[string] `json:"clientCompanyId" validate:"omitempty,uuid"`
	ClientContactID validate.Optional[string] `json:"clientContactId" validate:"omitempty,uuid"`
}

func (in UpdateOfferInput) Check() []validate.FieldError {
	return append(validate.NotCleared(in.Title, "title"), validate.NotCleared(in.Status, "status")...)
}

// UpdateOffer validates the resulting client company / contact pair, not
// just the fields present in the input. Clearing the client company clears
// the contact too.
func (s *Service) UpdateOffer(ctx context.Context, scope tenant.Scope, in UpdateOfferInput) (store.JobOffer, error) {
	var changes store.Changes
	changes = setText(changes, "title", in.Title)
	changes = setText(changes, "description", in.Description)
	changes = setText(changes, "location", in.Location)
	if in.Status.Set {
		changes = changes.Set("status", in.Status.Value)
	}

	if in.ClientCompanyID.Set || in.ClientContactID.Set {
		current, err := s.store.GetOffer(ctx, scope, in.ID)
		if err != nil {
			return store.JobOffer{}, err
		}
		companyID, contactID := current.ClientCompanyID, current.ClientContactID
		if in.ClientCompanyID.Set {
			companyID = clean(in.ClientCompanyID.Ptr())
			if companyID == nil {
				contactID = nil
			}
		}
		if in.ClientContactID.Set {
			contactID = clean(in.ClientContactID.Ptr())
		}
		if err := s.checkOfferLinks(ctx, scope, companyID, contactID); err != nil {
			return store.JobOffer{}, err
		}
		changes = changes.Set("client_company_id", nullable(companyID))
		changes = changes.Set("client_contact_id", nullable(contactID))
	}
	return s.store.UpdateOffer(ctx, scope, in.ID, changes)
}

// checkOfferLinks loads the referenced rows through the tenant. A row that
// cannot be loaded is treated as belonging to another tenant.
func (s *Service) checkOfferLinks(ctx context.Context, scope tenant.Scope, companyID, contactID *string) error {
	var company *policy.CompanyRef
	if companyID != nil {
		ref := policy.CompanyRef{ID: *companyID}
		cc, err := s.store.GetClientCompany(ctx, scope, *companyID)
		switch {
		case err == nil:
			ref.CompanyID = cc.CompanyID
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		company = &ref
	}
	var contact *policy.ContactRef
	if contactID != nil {
		ref := policy.ContactRef{ID: *contactID}
		ct, err := s.store.GetContact(ctx, scope, *contactID)
		switch {
		case err == nil:
			ref.ClientCompanyID = ct.ClientCompanyID
			ref.CompanyID = ct.CompanyID
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		contact = &ref
	}
	return policy.CheckOfferLinks(scope, company, contact)
}

func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func (s *Service) DeleteOffer(ctx context.Context, scope tenant.Scope, in IDInput) (Success, error) {
	if err := s.store.DeleteOffer(ctx, scope, in.ID); err != nil {
		return Success{}, err
	}
	s.emit(ctx, events.OfferDeleted, scope, in.ID)
	return succeeded, nil
}

func (s *Service) GetOffer(ctx context.Context, scope tenant.Scope, in IDInput) (store.OfferDetail, error) {
	return s.store.GetOfferDetail(ctx, scope, in.ID)
}

type OfferCandidateInput struct {
	OfferID     string `json:"offerId" validate:"required,uuid"`
	CandidateID string `json:"candidateId" validate:"required,uuid"`
}

func (s *Service) LinkCandidate(ctx context.Context, scope tenant.Scope, in OfferCandidateInput) (Success, error) {
	if err := s.store.LinkCandidate(ctx, scope, in.OfferID, in.CandidateID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}

func (s *Service) UnlinkCandidate(ctx context.Context, scope tenant.Scope, in OfferCandidateInput) (Success, error) {
	if err := s.store.UnlinkCandidate(ctx, scope, in.OfferID, in.CandidateID); err != nil {
		return Success{}, err
	}
	return succeeded, nil
}
