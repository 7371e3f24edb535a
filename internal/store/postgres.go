package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cabinet/api/internal/tenant"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

const userColumns = `id, company_id, email, name, password_hash, created_at`

// CompanyOfUser backs the tenant resolver.
func (s *PostgresStore) CompanyOfUser(ctx context.Context, userID string) (string, error) {
	var companyID string
	if err := get(ctx, s.db, &companyID, `SELECT company_id FROM users WHERE id = $1`, userID); err != nil {
		return "", fmt.Errorf("lookup company of user: %w", err)
	}
	return companyID, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	if err := get(ctx, s.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID); err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := get(ctx, s.db, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := get(ctx, s.db, &taken, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, strings.TrimSpace(email))
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// Registration creates a company together with its first user.
type Registration struct {
	Company Company
	User    User
}

func (s *PostgresStore) Register(ctx context.Context, reg Registration) (Registration, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := get(ctx, tx, &reg.Company, `
			INSERT INTO companies (id, name, siret) VALUES ($1, $2, $3)
			RETURNING id, name, siret, created_at
		`, reg.Company.ID, reg.Company.Name, reg.Company.Siret); err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		reg.User.CompanyID = reg.Company.ID
		if err := insertUser(ctx, tx, &reg.User); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Registration{}, err
	}
	return reg, nil
}

func insertUser(ctx context.Context, q querier, user *User) error {
	err := get(ctx, q, user, `
		INSERT INTO users (id, company_id, email, name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.ID, user.CompanyID, strings.ToLower(strings.TrimSpace(user.Email)), user.Name, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, scope tenant.Scope) (Company, error) {
	if err := requireScope(scope); err != nil {
		return Company{}, err
	}
	var company Company
	if err := get(ctx, s.db, &company, `SELECT id, name, siret, created_at FROM companies WHERE id = $1`, scope.CompanyID()); err != nil {
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	return company, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, scope tenant.Scope) ([]User, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var users []User
	err := selectRows(ctx, s.db, &users, `
		SELECT `+userColumns+` FROM users WHERE company_id = $1 ORDER BY created_at, id
	`, scope.CompanyID())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return emptyIfNil(users), nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := exec(ctx, s.db, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := exec(ctx, s.db, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ConsumeRefreshSession revokes a live refresh session and returns its user.
// The guarded update locks the row, so of two concurrent calls only one sees
// it live.
func (s *PostgresStore) ConsumeRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := get(ctx, s.db, &userID, `
		UPDATE refresh_sessions SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("consume refresh session: %w", err)
	}
	return userID, nil
}
