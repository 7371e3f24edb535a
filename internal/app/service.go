package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cabinet/api/internal/auth"
	"cabinet/api/internal/authpw"
	"cabinet/api/internal/config"
	"cabinet/api/internal/email"
	"cabinet/api/internal/events"
	"cabinet/api/internal/export"
	"cabinet/api/internal/paginate"
	"cabinet/api/internal/search"
	"cabinet/api/internal/storage"
	"cabinet/api/internal/store"
	"cabinet/api/internal/telemetry"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

type dataStore interface {
	Ping(context.Context) error
	CompanyOfUser(context.Context, string) (string, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	EmailTaken(context.Context, string) (bool, error)
	Register(context.Context, store.Registration) (store.Registration, error)
	GetCompany(context.Context, tenant.Scope) (store.Company, error)
	ListMembers(context.Context, tenant.Scope) ([]store.User, error)

	ListCandidates(context.Context, tenant.Scope, store.CandidateFilter, paginate.Cursor) (paginate.Page[store.CandidateListItem], error)
	CreateCandidate(context.Context, tenant.Scope, store.CandidateFields) (store.Candidate, error)
	GetCandidate(context.Context, tenant.Scope, string) (store.Candidate, error)
	GetCandidateDetail(context.Context, tenant.Scope, string) (store.CandidateDetail, error)
	UpdateCandidate(context.Context, tenant.Scope, string, store.Changes) (store.Candidate, error)
	DeleteCandidate(context.Context, tenant.Scope, string) (store.Candidate, error)
	SetCandidatePhoto(context.Context, tenant.Scope, string, *string) (*string, error)
	SetCandidateCV(context.Context, tenant.Scope, string, *string, *string) (*string, error)
	ListDistinctCities(context.Context, tenant.Scope) ([]string, error)
	ListDistinctLanguageNames(context.Context, tenant.Scope) ([]string, error)
	AddLanguage(context.Context, tenant.Scope, string, string, string) (store.Language, error)
	RemoveLanguage(context.Context, tenant.Scope, string) error
	AddExperience(context.Context, tenant.Scope, string, store.ExperienceFields) (store.Experience, error)
	UpdateExperience(context.Context, tenant.Scope, string, store.ExperienceFields) (store.Experience, error)
	DeleteExperience(context.Context, tenant.Scope, string) error
	AddFormation(context.Context, tenant.Scope, string, store.FormationFields) (store.Formation, error)
	UpdateFormation(context.Context, tenant.Scope, string, store.FormationFields) (store.Formation, error)
	DeleteFormation(context.Context, tenant.Scope, string) error
	AddTag(context.Context, tenant.Scope, string, string) (store.Tag, error)
	RemoveTag(context.Context, tenant.Scope, string, string) error
	ListTags(context.Context, tenant.Scope) ([]store.Tag, error)

	ListClientCompanies(context.Context, tenant.Scope, string) ([]store.ClientCompany, error)
	CreateClientCompany(context.Context, tenant.Scope, store.ClientCompanyFields) (store.ClientCompany, error)
	GetClientCompany(context.Context, tenant.Scope, string) (store.ClientCompany, error)
	GetClientCompanyDetail(context.Context, tenant.Scope, string) (store.ClientCompanyDetail, error)
	GetContact(context.Context, tenant.Scope, string) (store.Contact, error)
	CreateContact(context.Context, tenant.Scope, string, store.ContactFields) (store.Contact, error)
	UpdateContact(context.Context, tenant.Scope, string, store.Changes) (store.Contact, error)

	ListOffers(context.Context, tenant.Scope, store.OfferFilter, paginate.Offset) ([]store.JobOffer, int, error)
	GetOffer(context.Context, tenant.Scope, string) (store.JobOffer, error)
	GetOfferDetail(context.Context, tenant.Scope, string) (store.OfferDetail, error)
	CreateOffer(context.Context, tenant.Scope, store.OfferFields) (store.JobOffer, error)
	UpdateOffer(context.Context, tenant.Scope, string, store.Changes) (store.JobOffer, error)
	DeleteOffer(context.Context, tenant.Scope, string) error
	LinkCandidate(context.Context, tenant.Scope, string, string) error
	UnlinkCandidate(context.Context, tenant.Scope, string, string) error

	ListNotes(context.Context, tenant.Scope, store.NoteTarget) ([]store.Note, error)
	ListFreeNotes(context.Context, tenant.Scope, paginate.Cursor) (paginate.Page[store.Note], error)
	GetNote(context.Context, tenant.Scope, string) (store.Note, error)
	CreateNote(context.Context, tenant.Scope, store.NoteTarget, json.RawMessage) (store.Note, error)
	UpdateNoteContent(context.Context, tenant.Scope, string, json.RawMessage) (store.Note, error)
	DeleteNote(context.Context, tenant.Scope, string) error

	HasActiveInvitation(context.Context, tenant.Scope, string, time.Time) (bool, error)
	CreateInvitation(context.Context, tenant.Scope, string, string, time.Time) (store.Invitation, error)
	ListInvitations(context.Context, tenant.Scope, bool, time.Time) ([]store.Invitation, error)
	GetInvitation(context.Context, tenant.Scope, string) (store.Invitation, error)
	GetInvitationByToken(context.Context, string) (store.Invitation, error)
	RevokeInvitation(context.Context, tenant.Scope, string, time.Time) (store.Invitation, error)
	AcceptInvitation(context.Context, string, store.User, time.Time) (store.User, error)
}

// sessionStore keeps refresh sessions. Both the Postgres store and the Redis
// session store satisfy it.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	// ConsumeRefreshSession ends a live session and returns its user in one
	// atomic step, so a refresh token is redeemed at most once.
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type mailer interface {
	IsConfigured() bool
	SendInvitationEmail(to string, data email.InvitationData) error
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store    dataStore
	Sessions sessionStore
	Objects  storage.ObjectStore
	URLCache storage.URLCache
	Searcher search.Searcher
	Mailer   mailer
	Events   events.Publisher
	PDF      export.PDFRenderer
	Metrics  *telemetry.Metrics
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	tokens    *auth.Signer
	resolver  *tenant.Resolver
	passwords *authpw.Service
	objects   storage.ObjectStore
	urls      *storage.Signer
	search    *search.Service
	mailer    mailer
	events    events.Publisher
	exporter  *export.Service
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Sessions == nil {
		deps.Sessions = deps.Store.(sessionStore)
	}
	if deps.Objects == nil {
		deps.Objects = storage.Disabled{}
	}
	if deps.URLCache == nil {
		deps.URLCache = storage.NewMemoryURLCache()
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	tokens := auth.NewSigner(cfg.JWTSecret, cfg.AccessTTL)
	return &Service{
		cfg:       cfg,
		tokens:    tokens,
		store:     deps.Store,
		sessions:  deps.Sessions,
		resolver:  tenant.NewResolver(tokens, deps.Store),
		passwords: authpw.NewService(deps.Store),
		objects:   deps.Objects,
		urls:      storage.NewSigner(deps.Objects, deps.URLCache, cfg.SignedURLTTL),
		search:    search.NewService(deps.Searcher),
		mailer:    deps.Mailer,
		events:    deps.Events,
		exporter:  export.NewService(deps.Store, deps.PDF),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Resolve maps a bearer token to the calling principal.
func (s *Service) Resolve(ctx context.Context, token string) (tenant.Principal, error) {
	return s.resolver.Resolve(ctx, token)
}

func (s *Service) emit(ctx context.Context, eventType string, scope tenant.Scope, entityID string) {
	events.Emit(ctx, s.events, events.Event{
		Type:       eventType,
		CompanyID:  scope.CompanyID(),
		ActorID:    scope.UserID(),
		EntityID:   entityID,
		OccurredAt: s.now().UTC(),
	})
}

type Session struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	User         store.User `json:"user"`
	CompanyID    string     `json:"companyId"`
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	access, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return Session{}, err
	}
	refresh := auth.NewRefreshToken()
	if err := s.sessions.SaveRefreshSession(ctx, refresh.Hash, user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		ExpiresAt:    access.ExpiresAt,
		User:         user,
		CompanyID:    user.CompanyID,
	}, nil
}

type RegisterInput struct {
	CompanyName string `json:"companyName" validate:"notblank,min=2,max=120"`
	Siret       string `json:"siret" validate:"len=14,numeric"`
	Name        string `json:"name" validate:"notblank,min=2,max=80"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"min=8,max=72,maxbytes=72"`
}

// Register creates a company and its first user. Duplicate SIRET and
// duplicate email get the same answer.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	hash, err := s.passwords.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	reg, err := s.store.Register(ctx, store.Registration{
		Company: store.Company{ID: util.NewID(), Name: strings.TrimSpace(in.CompanyName), Siret: in.Siret},
		User: store.User{
			ID:           util.NewID(),
			Email:        normalizeEmail(in.Email),
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
		},
	})
	if store.IsConflict(err) {
		return Session{}, errConflict(msgRegisterConflict)
	}
	if err != nil {
		return Session{}, err
	}

	scope, err := tenant.Principal{UserID: reg.User.ID, CompanyID: reg.Company.ID}.Scope()
	if err == nil {
		s.emit(ctx, events.CompanyRegistered, scope, reg.Company.ID)
	}
	return s.issueSession(ctx, reg.User)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	user, err := s.passwords.SignIn(ctx, normalizeEmail(in.Email), in.Password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, errUnauthorized(msgBadCredentials)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Refresh rotates a refresh token: the presented one is consumed and a new
// pair is issued. Of two concurrent calls with the same token, one fails.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (Session, error) {
	userID, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(in.RefreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, errUnauthorized(msgSessionInvalid)
	}
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, errUnauthorized(msgSessionInvalid)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, in RefreshInput) (Success, error) {
	if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(in.RefreshToken)); err != nil {
		return Success{}, err
	}
	return Success{Success: true}, nil
}

type SessionInfo struct {
	Authenticated bool    `json:"authenticated"`
	UserID        *string `json:"userId"`
	CompanyID     *string `json:"companyId"`
}

func (s *Service) SessionInfo(p tenant.Principal) SessionInfo {
	if !p.Authenticated() {
		return SessionInfo{}
	}
	return SessionInfo{Authenticated: true, UserID: &p.UserID, CompanyID: &p.CompanyID}
}

type MyCompany struct {
	store.Company
	Members []store.User `json:"members"`
}

func (s *Service) GetMyCompany(ctx context.Context, scope tenant.Scope) (MyCompany, error) {
	company, err := s.store.GetCompany(ctx, scope)
	if err != nil {
		return MyCompany{}, err
	}
	members, err := s.store.ListMembers(ctx, scope)
	if err != nil {
		return MyCompany{}, err
	}
	return MyCompany{Company: company, Members: members}, nil
}

type Success struct {
	Success bool `json:"success"`
}

var succeeded = Success{Success: true}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// clean trims a optional text field; blank becomes nil.
func clean(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func logWarn(ctx context.Context, err error, msg string) {
	log.Ctx(ctx).Warn().Err(err).Msg(msg)
}
