package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"cabinet/api/internal/email"
	"cabinet/api/internal/events"
	"cabinet/api/internal/store"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

const (
	msgEmailTaken          = "Un utilisateur avec cet email existe déjà."
	msgInvitationExists    = "Une invitation active existe déjà pour cet email."
	msgInvitationNotFound  = "Invitation introuvable."
	msgInvitationUsed      = "Cette invitation a déjà été utilisée."
	msgInvitationRevoked   = "Cette invitation a été révoquée."
	msgInvitationExpired   = "Cette invitation a expiré."
	msgInvitationEmail     = "L'email ne correspond pas à celui de l'invitation."
	msgInvitationNotActive = "Seules les invitations actives peuvent être révoquées."
)

var invitationStatusMessages = map[store.InvitationStatus]string{
	store.InvitationUsed:    msgInvitationUsed,
	store.InvitationRevoked: msgInvitationRevoked,
	store.InvitationExpired: msgInvitationExpired,
}

type InvitationView struct {
	store.Invitation
	Status store.InvitationStatus `json:"status"`
}

func (s *Service) invitationView(inv store.Invitation) InvitationView {
	return InvitationView{Invitation: inv, Status: inv.Status(s.now())}
}

type CreateInvitationInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// CreateInvitation records the invitation and mails the link when SMTP is
// configured. A failed mail does not fail the call.
func (s *Service) CreateInvitation(ctx context.Context, scope tenant.Scope, in CreateInvitationInput) (InvitationView, error) {
	address := normalizeEmail(in.Email)
	taken, err := s.store.EmailTaken(ctx, address)
	if err != nil {
		return InvitationView{}, err
	}
	if taken {
		return InvitationView{}, errConflict(msgEmailTaken)
	}
	now := s.now()
	active, err := s.store.HasActiveInvitation(ctx, scope, address, now)
	if err != nil {
		return InvitationView{}, err
	}
	if active {
		return InvitationView{}, errConflict(msgInvitationExists)
	}

	inv, err := s.store.CreateInvitation(ctx, scope, address, util.NewToken(32), now.Add(s.cfg.InvitationTTL))
	if err != nil {
		return InvitationView{}, err
	}
	s.sendInvitation(ctx, scope, inv)
	s.emit(ctx, events.InvitationCreated, scope, inv.ID)
	return s.invitationView(inv), nil
}

func (s *Service) sendInvitation(ctx context.Context, scope tenant.Scope, inv store.Invitation) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	inviter, err := s.store.GetUserByID(ctx, scope.UserID())
	if err != nil {
		logWarn(ctx, err, "load inviter")
		return
	}
	err = s.mailer.SendInvitationEmail(inv.Email, email.InvitationData{
		CompanyName: inv.CompanyName,
		InviterName: inviter.Name,
		AcceptURL:   s.cfg.AppURL + "/invitation/" + inv.Token,
		ExpiresAt:   inv.ExpiresAt,
	})
	if err != nil {
		logWarn(ctx, err, "send invitation email")
	}
}

func (s *Service) ListInvitations(ctx context.Context, scope tenant.Scope, _ struct{}) ([]InvitationView, error) {
	return s.listInvitations(ctx, scope, true)
}

func (s *Service) ListAllInvitations(ctx context.Context, scope tenant.Scope, _ struct{}) ([]InvitationView, error) {
	return s.listInvitations(ctx, scope, false)
}

func (s *Service) listInvitations(ctx context.Context, scope tenant.Scope, activeOnly bool) ([]InvitationView, error) {
	invitations, err := s.store.ListInvitations(ctx, scope, activeOnly, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]InvitationView, 0, len(invitations))
	for _, inv := range invitations {
		out = append(out, s.invitationView(inv))
	}
	return out, nil
}

func (s *Service) RevokeInvitation(ctx context.Context, scope tenant.Scope, in IDInput) (InvitationView, error) {
	inv, err := s.store.GetInvitation(ctx, scope, in.ID)
	if err != nil {
		return InvitationView{}, err
	}
	if inv.Status(s.now()) != store.InvitationActive {
		return InvitationView{}, errBadRequest(msgInvitationNotActive)
	}
	inv, err = s.store.RevokeInvitation(ctx, scope, in.ID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		// Used or expired between the read and the update.
		return InvitationView{}, errBadRequest(msgInvitationNotActive)
	}
	if err != nil {
		return InvitationView{}, err
	}
	return s.invitationView(inv), nil
}

type TokenInput struct {
	Token string `json:"token" validate:"notblank,max=128"`
}

type PublicInvitation struct {
	Email       string                 `json:"email"`
	CompanyName string                 `json:"companyName"`
	Status      store.InvitationStatus `json:"status"`
	ExpiresAt   time.Time              `json:"expiresAt"`
}

func (s *Service) GetInvitationByToken(ctx context.Context, in TokenInput) (PublicInvitation, error) {
	inv, err := s.invitationByToken(ctx, in.Token)
	if err != nil {
		return PublicInvitation{}, err
	}
	return PublicInvitation{
		Email:       inv.Email,
		CompanyName: inv.CompanyName,
		Status:      inv.Status(s.now()),
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

func (s *Service) invitationByToken(ctx context.Context, token string) (store.Invitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, strings.TrimSpace(token))
	if errors.Is(err, store.ErrNotFound) {
		return store.Invitation{}, errNotFound(msgInvitationNotFound)
	}
	return inv, err
}

type AcceptInvitationInput struct {
	Token    string `json:"token" validate:"notblank,max=128"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"notblank,min=2,max=80"`
	Password string `json:"password" validate:"min=8,max=72,maxbytes=72"`
}

// AcceptInvitation creates the invited user. The invitation is checked here
// for a precise message and checked again by the guarded update in the store.
func (s *Service) AcceptInvitation(ctx context.Context, in AcceptInvitationInput) (Session, error) {
	inv, err := s.invitationByToken(ctx, in.Token)
	if err != nil {
		return Session{}, err
	}
	if msg, ok := invitationStatusMessages[inv.Status(s.now())]; ok {
		return Session{}, errBadRequest(msg)
	}
	address := normalizeEmail(in.Email)
	if address != normalizeEmail(inv.Email) {
		return Session{}, errBadRequest(msgInvitationEmail)
	}
	taken, err := s.store.EmailTaken(ctx, address)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, errConflict(msgEmailTaken)
	}

	hash, err := s.passwords.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.AcceptInvitation(ctx, inv.ID, store.User{
		ID:           util.NewID(),
		Email:        address,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
	}, s.now())
	switch {
	case errors.Is(err, store.ErrAlreadyUsed):
		return Session{}, errBadRequest(msgInvitationUsed)
	case store.IsConflict(err):
		return Session{}, errConflict(msgEmailTaken)
	case err != nil:
		return Session{}, err
	}

	if scope, err := (tenant.Principal{UserID: user.ID, CompanyID: user.CompanyID}).Scope(); err == nil {
		s.emit(ctx, events.InvitationAccepted, scope, inv.ID)
	}
	return s.issueSession(ctx, user)
}
