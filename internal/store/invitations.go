package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

const invitationColumns = `i.id, i.company_id, co.name AS company_name, i.email, i.token, i.expires_at,
	i.used_at, i.revoked_at, i.created_by, i.created_at`

const invitationFrom = ` FROM invitations i JOIN companies co ON co.id = i.company_id `

// HasActiveInvitation reports an unused, unrevoked, unexpired invitation for
// the email in the tenant.
func (s *PostgresStore) HasActiveInvitation(ctx context.Context, scope tenant.Scope, email string, now time.Time) (bool, error) {
	if err := requireScope(scope); err != nil {
		return false, err
	}
	var exists bool
	err := get(ctx, s.db, &exists, `
		SELECT EXISTS(SELECT 1 FROM invitations
			WHERE company_id = $1 AND LOWER(email) = LOWER($2)
			AND used_at IS NULL AND revoked_at IS NULL AND expires_at >= $3)
	`, scope.CompanyID(), strings.TrimSpace(email), now)
	if err != nil {
		return false, fmt.Errorf("check active invitation: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, scope tenant.Scope, email, token string, expiresAt time.Time) (Invitation, error) {
	if err := requireScope(scope); err != nil {
		return Invitation{}, err
	}
	id := util.NewID()
	_, err := exec(ctx, s.db, `
		INSERT INTO invitations (id, company_id, email, token, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, scope.CompanyID(), strings.ToLower(strings.TrimSpace(email)), token, expiresAt, scope.UserID())
	if err != nil {
		return Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return s.getInvitation(ctx, s.db, `i.id = $1`, id)
}

// ListInvitations returns the tenant's invitations, newest first. With
// activeOnly the status filter is applied in SQL with the same precedence as
// Invitation.Status.
func (s *PostgresStore) ListInvitations(ctx context.Context, scope tenant.Scope, activeOnly bool, now time.Time) ([]Invitation, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var a args
	query := `SELECT ` + invitationColumns + invitationFrom + ` WHERE i.company_id = ` + a.add(scope.CompanyID())
	if activeOnly {
		query += ` AND i.used_at IS NULL AND i.revoked_at IS NULL AND i.expires_at >= ` + a.add(now)
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`
	var out []Invitation
	if err := selectRows(ctx, s.db, &out, query, a...); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return emptyIfNil(out), nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, scope tenant.Scope, id string) (Invitation, error) {
	if err := requireScope(scope); err != nil {
		return Invitation{}, err
	}
	if !util.IsUUID(id) {
		return Invitation{}, ErrNotFound
	}
	return s.getInvitation(ctx, s.db, `i.id = $1 AND i.company_id = $2`, id, scope.CompanyID())
}

// GetInvitationByToken is the public lookup used by the acceptance page.
func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	if strings.TrimSpace(token) == "" {
		return Invitation{}, ErrNotFound
	}
	return s.getInvitation(ctx, s.db, `i.token = $1`, token)
}

func (s *PostgresStore) getInvitation(ctx context.Context, q querier, where string, params ...any) (Invitation, error) {
	var inv Invitation
	if err := get(ctx, q, &inv, `SELECT `+invitationColumns+invitationFrom+` WHERE `+where, params...); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// RevokeInvitation marks an active invitation revoked. Only rows still
// active at now are touched.
func (s *PostgresStore) RevokeInvitation(ctx context.Context, scope tenant.Scope, id string, now time.Time) (Invitation, error) {
	if err := requireScope(scope); err != nil {
		return Invitation{}, err
	}
	if !util.IsUUID(id) {
		return Invitation{}, ErrNotFound
	}
	err := execOne(ctx, s.db, `
		UPDATE invitations SET revoked_at = $1
		WHERE id = $2 AND company_id = $3 AND used_at IS NULL AND revoked_at IS NULL AND expires_at >= $1
	`, now, id, scope.CompanyID())
	if err != nil {
		return Invitation{}, fmt.Errorf("revoke invitation: %w", err)
	}
	return s.GetInvitation(ctx, scope, id)
}

// AcceptInvitation marks the invitation used and creates the user in the
// invitation's company, in one transaction. The used_at update is guarded so
// two concurrent acceptances cannot both succeed.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, invitationID string, user User, now time.Time) (User, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var companyID string
		err := get(ctx, tx, &companyID, `
			UPDATE invitations SET used_at = $1
			WHERE id = $2 AND used_at IS NULL AND revoked_at IS NULL AND expires_at >= $1
			RETURNING company_id
		`, now, invitationID)
		if errors.Is(err, ErrNotFound) {
			return ErrAlreadyUsed
		}
		if err != nil {
			return fmt.Errorf("mark invitation used: %w", err)
		}
		user.CompanyID = companyID
		return insertUser(ctx, tx, &user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}
