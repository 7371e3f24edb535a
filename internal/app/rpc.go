package app

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"cabinet/api/internal/ratelimit"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/validate"
)

// limit is a rate-limit rule attached to a procedure. Rules count per client
// IP unless perUser is set.
type limit struct {
	rule    ratelimit.Rule
	perUser bool
}

var (
	limitRegister        = limit{rule: ratelimit.Rule{Name: "auth.register", Limit: 5, Window: time.Hour}}
	limitLogin           = limit{rule: ratelimit.Rule{Name: "auth.login", Limit: 10, Window: 15 * time.Minute}}
	limitInvitationToken = limit{rule: ratelimit.Rule{Name: "invitation.getByToken", Limit: 30, Window: time.Minute}}
	limitAccept          = limit{rule: ratelimit.Rule{Name: "invitation.accept", Limit: 10, Window: 15 * time.Minute}}
	limitInvite          = limit{rule: ratelimit.Rule{Name: "invitation.create", Limit: 20, Window: time.Hour}, perUser: true}
	limitUpload          = limit{rule: ratelimit.Rule{Name: "upload", Limit: 30, Window: time.Minute}, perUser: true}
)

type callFunc func(ctx context.Context, p tenant.Principal, body []byte) (any, error)

type procedure struct {
	public bool
	limits []limit
	call   callFunc
}

// decodeInput reads a procedure input and validates it. An empty body is the
// zero input.
func decodeInput[In any](body []byte) (In, error) {
	var in In
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return in, errBadRequest(msgInvalidBody)
		}
	}
	if err := validate.Struct(&in); err != nil {
		return in, err
	}
	return in, nil
}

func tenantProc[In, Out any](fn func(context.Context, tenant.Scope, In) (Out, error), limits ...limit) procedure {
	return procedure{
		limits: limits,
		call: func(ctx context.Context, p tenant.Principal, body []byte) (any, error) {
			scope, err := p.Scope()
			if err != nil {
				return nil, errUnauthorized(msgUnauthorized)
			}
			in, err := decodeInput[In](body)
			if err != nil {
				return nil, err
			}
			return fn(ctx, scope, in)
		},
	}
}

func publicProc[In, Out any](fn func(context.Context, In) (Out, error), limits ...limit) procedure {
	return procedure{
		public: true,
		limits: limits,
		call: func(ctx context.Context, _ tenant.Principal, body []byte) (any, error) {
			in, err := decodeInput[In](body)
			if err != nil {
				return nil, err
			}
			return fn(ctx, in)
		},
	}
}

func procedures(s *Service) map[string]procedure {
	return map[string]procedure{
		"auth.register": publicProc(s.Register, limitRegister),
		"auth.login":    publicProc(s.Login, limitLogin),
		"auth.refresh":  publicProc(s.Refresh),
		"auth.logout":   publicProc(s.Logout),
		"auth.session": {
			public: true,
			call: func(_ context.Context, p tenant.Principal, _ []byte) (any, error) {
				return s.SessionInfo(p), nil
			},
		},

		"company.getMyCompany": tenantProc(func(ctx context.Context, scope tenant.Scope, _ struct{}) (MyCompany, error) {
			return s.GetMyCompany(ctx, scope)
		}),

		"candidate.list":                      tenantProc(s.ListCandidates),
		"candidate.create":                    tenantProc(s.CreateCandidate),
		"candidate.update":                    tenantProc(s.UpdateCandidate),
		"candidate.delete":                    tenantProc(s.DeleteCandidate),
		"candidate.getById":                   tenantProc(s.GetCandidate),
		"candidate.uploadPhoto":               tenantProc(s.UploadPhoto, limitUpload),
		"candidate.uploadCv":                  tenantProc(s.UploadCV, limitUpload),
		"candidate.deleteCv":                  tenantProc(s.DeleteCV),
		"candidate.addLanguage":               tenantProc(s.AddLanguage),
		"candidate.removeLanguage":            tenantProc(s.RemoveLanguage),
		"candidate.addTag":                    tenantProc(s.AddTag),
		"candidate.removeTag":                 tenantProc(s.RemoveTag),
		"candidate.addExperience":             tenantProc(s.AddExperience),
		"candidate.updateExperience":          tenantProc(s.UpdateExperience),
		"candidate.deleteExperience":          tenantProc(s.DeleteExperience),
		"candidate.addFormation":              tenantProc(s.AddFormation),
		"candidate.updateFormation":           tenantProc(s.UpdateFormation),
		"candidate.deleteFormation":           tenantProc(s.DeleteFormation),
		"candidate.listDistinctCities":        tenantProc(s.ListDistinctCities),
		"candidate.listDistinctLanguageNames": tenantProc(s.ListDistinctLanguageNames),
		"candidate.exportDossier":             tenantProc(s.ExportDossier),

		"clientCompany.list":          tenantProc(s.ListClientCompanies),
		"clientCompany.create":        tenantProc(s.CreateClientCompany),
		"clientCompany.getById":       tenantProc(s.GetClientCompany),
		"clientCompany.createContact": tenantProc(s.CreateContact),
		"clientCompany.updateContact": tenantProc(s.UpdateContact),

		"offer.list":            tenantProc(s.ListOffers),
		"offer.create":          tenantProc(s.CreateOffer),
		"offer.update":          tenantProc(s.UpdateOffer),
		"offer.delete":          tenantProc(s.DeleteOffer),
		"offer.getById":         tenantProc(s.GetOffer),
		"offer.linkCandidate":   tenantProc(s.LinkCandidate),
		"offer.unlinkCandidate": tenantProc(s.UnlinkCandidate),

		"tag.list": tenantProc(s.ListTags),

		"note.list":     tenantProc(s.ListNotes),
		"note.listFree": tenantProc(s.ListFreeNotes),
		"note.create":   tenantProc(s.CreateNote),
		"note.update":   tenantProc(s.UpdateNote),
		"note.delete":   tenantProc(s.DeleteNote),

		"invitation.create":     tenantProc(s.CreateInvitation, limitInvite),
		"invitation.list":       tenantProc(s.ListInvitations),
		"invitation.listAll":    tenantProc(s.ListAllInvitations),
		"invitation.revoke":     tenantProc(s.RevokeInvitation),
		"invitation.getByToken": publicProc(s.GetInvitationByToken, limitInvitationToken),
		"invitation.accept":     publicProc(s.AcceptInvitation, limitAccept),

		"search.search": tenantProc(s.Search),
	}
}
