package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cabinet/api/internal/auth"
	"cabinet/api/internal/export"
	"cabinet/api/internal/paginate"
	"cabinet/api/internal/policy"
	"cabinet/api/internal/storage"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/upload"
	"cabinet/api/internal/validate"
)

const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeBadRequest      = "BAD_REQUEST"
	CodeConflict        = "CONFLICT"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeUpstream        = "UPSTREAM_FAILURE"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

const (
	msgUnauthorized     = "Vous devez être connecté."
	msgSessionInvalid   = "Session invalide ou expirée."
	msgForbidden        = "Vous n'êtes pas autorisé à effectuer cette action."
	msgNotFound         = "Ressource introuvable."
	msgInvalidInput     = "Données invalides."
	msgInvalidBody      = "Corps de requête invalide."
	msgInvalidCursor    = "Curseur invalide."
	msgInvalidSort      = "Tri non autorisé."
	msgTooManyRequests  = "Trop de requêtes. Veuillez réessayer plus tard."
	msgStorageDown      = "Le stockage de fichiers est indisponible."
	msgPDFDown          = "La génération PDF est indisponible."
	msgAlreadyExists    = "Cette ressource existe déjà."
	msgInternal         = "Une erreur interne est survenue."
	msgBadCredentials   = "Email ou mot de passe incorrect."
	msgRegisterConflict = "Ces informations ne sont pas disponibles."
	msgTagLimit         = "Un candidat ne peut pas avoir plus de 20 tags."
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errUnauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, CodeForbidden, msgForbidden, nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, message, nil)
}

func errBadRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, CodeBadRequest, message, nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, CodeConflict, message, nil)
}

func errTooManyRequests(resetAt time.Time) *DomainError {
	return domainError(http.StatusTooManyRequests, CodeTooManyRequests, msgTooManyRequests,
		map[string]any{"resetAt": resetAt.UTC()})
}

var offerLinkMessages = map[error]string{
	policy.ErrClientCompanyOutsideTenant: "L'entreprise cliente est introuvable.",
	policy.ErrContactOutsideTenant:       "Le contact est introuvable.",
	policy.ErrContactWithoutCompany:      "Un contact ne peut être associé sans son entreprise cliente.",
	policy.ErrContactMismatch:            "Le contact n'appartient pas à l'entreprise cliente sélectionnée.",
}

var uploadMessages = map[error]string{
	upload.ErrMalformed:      "Le fichier est illisible.",
	upload.ErrTooLarge:       "Le fichier est trop volumineux.",
	upload.ErrUnsupported:    "Type de fichier non supporté.",
	upload.ErrSignatureClash: "Le contenu du fichier ne correspond pas au type déclaré.",
}

// mapError turns any error into the wire taxonomy. Anything not recognised is
// an internal error and carries no detail.
func mapError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		return domainError(http.StatusBadRequest, CodeBadRequest, msgInvalidInput,
			map[string]any{"fields": validationErr.Fields})
	}
	for target, message := range offerLinkMessages {
		if errors.Is(err, target) {
			return errBadRequest(message)
		}
	}
	for target, message := range uploadMessages {
		if errors.Is(err, target) {
			return errBadRequest(message)
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows), errors.Is(err, policy.ErrNotFound):
		return errNotFound(msgNotFound)
	case errors.Is(err, policy.ErrForbidden):
		return errForbidden()
	case errors.Is(err, tenant.ErrNoTenant):
		return errUnauthorized(msgUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return errUnauthorized(msgSessionInvalid)
	case errors.Is(err, store.ErrInvalidCursor):
		return errBadRequest(msgInvalidCursor)
	case errors.Is(err, paginate.ErrInvalidSort):
		return errBadRequest(msgInvalidSort)
	case errors.Is(err, store.ErrTagLimit):
		return errBadRequest(msgTagLimit)
	case store.IsConflict(err):
		return errConflict(msgAlreadyExists)
	case errors.Is(err, storage.ErrUnavailable):
		return domainError(http.StatusBadGateway, CodeUpstream, msgStorageDown, nil)
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return domainError(http.StatusBadGateway, CodeUpstream, msgPDFDown, nil)
	}
	return domainError(http.StatusInternalServerError, CodeInternal, msgInternal, nil)
}
