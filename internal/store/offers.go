package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cabinet/api/internal/paginate"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

const offerColumns = `o.id, o.company_id, o.title, o.description, o.status, o.location,
	o.client_company_id, o.client_contact_id, cc.name AS client_company_name, o.created_at, o.updated_at`

// OfferSortColumns is the allow-list behind offer.list's sortBy.
var OfferSortColumns = paginate.SortColumns{
	"createdAt": "o.created_at",
	"updatedAt": "o.updated_at",
	"title":     "o.title",
	"status":    "o.status",
}

var offerUpdatable = map[string]bool{
	"title": true, "description": true, "status": true, "location": true,
	"client_company_id": true, "client_contact_id": true,
}

type OfferDetail struct {
	JobOffer
	ClientCompany *ClientCompany    `json:"clientCompany"`
	ClientContact *Contact          `json:"clientContact"`
	Candidates    []LinkedCandidate `json:"candidates"`
}

// ListOffers runs the item and count queries with the same filter. The two
// are not read in one snapshot.
func (s *PostgresStore) ListOffers(ctx context.Context, scope tenant.Scope, filter OfferFilter, page paginate.Offset) ([]JobOffer, int, error) {
	if err := requireScope(scope); err != nil {
		return nil, 0, err
	}
	orderBy, err := page.OrderBy(OfferSortColumns, "createdAt", "o.id")
	if err != nil {
		return nil, 0, err
	}

	var a args
	where := []string{"o.company_id = " + a.add(scope.CompanyID())}
	if filter.Status != "" {
		where = append(where, "o.status = "+a.add(filter.Status))
	}
	if filter.ClientCompanyID != "" {
		if !util.IsUUID(filter.ClientCompanyID) {
			return []JobOffer{}, 0, nil
		}
		where = append(where, "o.client_company_id = "+a.add(filter.ClientCompanyID))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		p := a.add(util.LikePattern(term))
		where = append(where, fmt.Sprintf(`(o.title ILIKE %[1]s ESCAPE '\' OR o.description ILIKE %[1]s ESCAPE '\')`, p))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := get(ctx, s.db, &total, `SELECT COUNT(*) FROM job_offers o WHERE `+whereSQL, a...); err != nil {
		return nil, 0, fmt.Errorf("count offers: %w", err)
	}

	itemArgs := append(args{}, a...)
	query := `SELECT ` + offerColumns + `
		FROM job_offers o LEFT JOIN client_companies cc ON cc.id = o.client_company_id
		WHERE ` + whereSQL + ` ORDER BY ` + orderBy +
		` LIMIT ` + itemArgs.add(page.Limit()) + ` OFFSET ` + itemArgs.add(page.Skip())
	var offers []JobOffer
	if err := selectRows(ctx, s.db, &offers, query, itemArgs...); err != nil {
		return nil, 0, fmt.Errorf("list offers: %w", err)
	}
	return emptyIfNil(offers), total, nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, scope tenant.Scope, id string) (JobOffer, error) {
	return s.getOffer(ctx, s.db, scope, id)
}

func (s *PostgresStore) getOffer(ctx context.Context, q querier, scope tenant.Scope, id string) (JobOffer, error) {
	if err := requireScope(scope); err != nil {
		return JobOffer{}, err
	}
	if !util.IsUUID(id) {
		return JobOffer{}, ErrNotFound
	}
	var o JobOffer
	err := get(ctx, q, &o, `
		SELECT `+offerColumns+`
		FROM job_offers o LEFT JOIN client_companies cc ON cc.id = o.client_company_id
		WHERE o.id = $1 AND o.company_id = $2
	`, id, scope.CompanyID())
	if err != nil {
		return JobOffer{}, err
	}
	return o, nil
}

func (s *PostgresStore) GetOfferDetail(ctx context.Context, scope tenant.Scope, id string) (OfferDetail, error) {
	o, err := s.GetOffer(ctx, scope, id)
	if err != nil {
		return OfferDetail{}, err
	}
	detail := OfferDetail{JobOffer: o}
	if o.ClientCompanyID != nil {
		cc, err := s.GetClientCompany(ctx, scope, *o.ClientCompanyID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return OfferDetail{}, fmt.Errorf("load offer client company: %w", err)
		}
		if err == nil {
			detail.ClientCompany = &cc
		}
	}
	if o.ClientContactID != nil {
		contact, err := s.GetContact(ctx, scope, *o.ClientContactID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return OfferDetail{}, fmt.Errorf("load offer contact: %w", err)
		}
		if err == nil {
			detail.ClientContact = &contact
		}
	}
	if err := selectRows(ctx, s.db, &detail.Candidates, `
		SELECT c.id, c.first_name, c.last_name, c.title, a.created_at AS linked_at
		FROM applications a JOIN candidates c ON c.id = a.candidate_id
		WHERE a.job_offer_id = $1 AND c.company_id = $2
		ORDER BY a.created_at DESC, c.id DESC
	`, o.ID, scope.CompanyID()); err != nil {
		return OfferDetail{}, fmt.Errorf("load offer candidates: %w", err)
	}
	detail.Candidates = emptyIfNil(detail.Candidates)
	return detail, nil
}

func (s *PostgresStore) CreateOffer(ctx context.Context, scope tenant.Scope, f OfferFields) (JobOffer, error) {
	if err := requireScope(scope); err != nil {
		return JobOffer{}, err
	}
	status := f.Status
	if status == "" {
		status = OfferTodo
	}
	id := util.NewID()
	_, err := exec(ctx, s.db, `
		INSERT INTO job_offers (id, company_id, title, description, status, location, client_company_id, client_contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, scope.CompanyID(), f.Title, f.Description, status, f.Location, f.ClientCompanyID, f.ClientContactID)
	if err != nil {
		return JobOffer{}, fmt.Errorf("insert offer: %w", err)
	}
	return s.GetOffer(ctx, scope, id)
}

func (s *PostgresStore) UpdateOffer(ctx context.Context, scope tenant.Scope, id string, changes Changes) (JobOffer, error) {
	if len(changes) == 0 {
		return s.GetOffer(ctx, scope, id)
	}
	if err := requireScope(scope); err != nil {
		return JobOffer{}, err
	}
	if !util.IsUUID(id) {
		return JobOffer{}, ErrNotFound
	}
	var a args
	set, err := changes.setClause(offerUpdatable, &a)
	if err != nil {
		return JobOffer{}, err
	}
	query := `UPDATE job_offers SET ` + set + `, updated_at = NOW()
		WHERE id = ` + a.add(id) + ` AND company_id = ` + a.add(scope.CompanyID())
	if err := execOne(ctx, s.db, query, a...); err != nil {
		if errors.Is(err, ErrNotFound) {
			return JobOffer{}, ErrNotFound
		}
		return JobOffer{}, fmt.Errorf("update offer: %w", err)
	}
	return s.GetOffer(ctx, scope, id)
}

// DeleteOffer removes the offer, its applications and its notes in one
// transaction.
func (s *PostgresStore) DeleteOffer(ctx context.Context, scope tenant.Scope, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		o, err := s.getOffer(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `DELETE FROM applications WHERE job_offer_id = $1`, o.ID); err != nil {
			return fmt.Errorf("delete offer applications: %w", err)
		}
		if _, err := exec(ctx, tx, `DELETE FROM notes WHERE job_offer_id = $1`, o.ID); err != nil {
			return fmt.Errorf("delete offer notes: %w", err)
		}
		if err := execOne(ctx, tx, `DELETE FROM job_offers WHERE id = $1 AND company_id = $2`, o.ID, scope.CompanyID()); err != nil {
			return fmt.Errorf("delete offer: %w", err)
		}
		return nil
	})
}

// LinkCandidate records an application. Linking twice is a no-op.
func (s *PostgresStore) LinkCandidate(ctx context.Context, scope tenant.Scope, offerID, candidateID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		o, err := s.getOffer(ctx, tx, scope, offerID)
		if err != nil {
			return err
		}
		c, err := s.getCandidate(ctx, tx, scope, candidateID, false)
		if err != nil {
			return err
		}
		_, err = exec(ctx, tx, `
			INSERT INTO applications (candidate_id, job_offer_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, o.ID)
		return err
	})
}

func (s *PostgresStore) UnlinkCandidate(ctx context.Context, scope tenant.Scope, offerID, candidateID string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !util.IsUUID(offerID) || !util.IsUUID(candidateID) {
		return ErrNotFound
	}
	return execOne(ctx, s.db, `
		DELETE FROM applications a USING job_offers o
		WHERE a.job_offer_id = $1 AND a.candidate_id = $2 AND o.id = a.job_offer_id AND o.company_id = $3
	`, offerID, candidateID, scope.CompanyID())
}
