// Package policy holds the authorization predicates shared by every
// procedure: tenant membership for all rows and authorship for notes.
package policy

import (
	"errors"

	"cabinet/api/internal/tenant"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

type Decision int

const (
	Allow Decision = iota
	DenyNotFound
	DenyForbidden
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	ErrClientCompanyOutsideTenant = errors.New("client company outside tenant")
	ErrContactOutsideTenant       = errors.New("contact outside tenant")
	ErrContactWithoutCompany      = errors.New("contact requires a client company")
	ErrContactMismatch            = errors.New("contact does not belong to client company")
)

// Resource describes the row being acted on. AuthorID is set only for
// author-owned content.
type Resource struct {
	CompanyID string
	AuthorID  string
}

// Evaluate decides an action. A row of another tenant is reported as absent.
func Evaluate(scope tenant.Scope, action Action, res Resource) Decision {
	if !scope.Owns(res.CompanyID) {
		return DenyNotFound
	}
	switch action {
	case ActionRead:
		return Allow
	case ActionWrite, ActionDelete:
		if res.AuthorID != "" && res.AuthorID != scope.UserID() {
			return DenyForbidden
		}
		return Allow
	default:
		return DenyForbidden
	}
}

func Can(scope tenant.Scope, action Action, res Resource) bool {
	return Evaluate(scope, action, res) == Allow
}

// Check is Evaluate as an error.
func Check(scope tenant.Scope, action Action, res Resource) error {
	switch Evaluate(scope, action, res) {
	case Allow:
		return nil
	case DenyNotFound:
		return ErrNotFound
	default:
		return ErrForbidden
	}
}

// CompanyRef is a client company as seen from an offer.
type CompanyRef struct {
	ID        string
	CompanyID string
}

// ContactRef is a client contact as seen from an offer.
type ContactRef struct {
	ID              string
	ClientCompanyID string
	CompanyID       string
}

// CheckOfferLinks validates the client company and contact an offer points
// to. Either may be nil.
func CheckOfferLinks(scope tenant.Scope, company *CompanyRef, contact *ContactRef) error {
	if company != nil && !scope.Owns(company.CompanyID) {
		return ErrClientCompanyOutsideTenant
	}
	if contact == nil {
		return nil
	}
	if !scope.Owns(contact.CompanyID) {
		return ErrContactOutsideTenant
	}
	if company == nil {
		return ErrContactWithoutCompany
	}
	if contact.ClientCompanyID != company.ID {
		return ErrContactMismatch
	}
	return nil
}
