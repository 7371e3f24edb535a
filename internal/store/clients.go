package store

import (
	"context"
	"fmt"
	"strings"

	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

const clientCompanyColumns = `cc.id, cc.company_id, cc.name, cc.sector, cc.website, cc.city, cc.created_at, cc.updated_at`

const contactColumns = `ct.id, ct.client_company_id, cc.company_id, ct.first_name, ct.last_name, ct.email,
	ct.phone, ct.position, ct.created_at, ct.updated_at`

type ClientCompanyFields struct {
	Name    string
	Sector  *string
	Website *string
	City    *string
}

type ClientCompanyDetail struct {
	ClientCompany
	Contacts []Contact  `json:"contacts"`
	Offers   []JobOffer `json:"offers"`
}

func (s *PostgresStore) ListClientCompanies(ctx context.Context, scope tenant.Scope, search string) ([]ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var a args
	query := `
		SELECT ` + clientCompanyColumns + `,
			(SELECT COUNT(*) FROM client_contacts x WHERE x.client_company_id = cc.id) AS contact_count,
			(SELECT COUNT(*) FROM job_offers o WHERE o.client_company_id = cc.id) AS offer_count
		FROM client_companies cc
		WHERE cc.company_id = ` + a.add(scope.CompanyID())
	if term := strings.TrimSpace(search); term != "" {
		query += ` AND cc.name ILIKE ` + a.add(util.LikePattern(term)) + ` ESCAPE '\'`
	}
	query += ` ORDER BY cc.name, cc.id`

	var companies []ClientCompany
	if err := selectRows(ctx, s.db, &companies, query, a...); err != nil {
		return nil, fmt.Errorf("list client companies: %w", err)
	}
	return emptyIfNil(companies), nil
}

func (s *PostgresStore) CreateClientCompany(ctx context.Context, scope tenant.Scope, f ClientCompanyFields) (ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return ClientCompany{}, err
	}
	var cc ClientCompany
	err := get(ctx, s.db, &cc, `
		INSERT INTO client_companies AS cc (id, company_id, name, sector, website, city)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+clientCompanyColumns,
		util.NewID(), scope.CompanyID(), f.Name, f.Sector, f.Website, f.City)
	if err != nil {
		return ClientCompany{}, fmt.Errorf("insert client company: %w", err)
	}
	return cc, nil
}

func (s *PostgresStore) GetClientCompany(ctx context.Context, scope tenant.Scope, id string) (ClientCompany, error) {
	return s.getClientCompany(ctx, s.db, scope, id)
}

func (s *PostgresStore) getClientCompany(ctx context.Context, q querier, scope tenant.Scope, id string) (ClientCompany, error) {
	if err := requireScope(scope); err != nil {
		return ClientCompany{}, err
	}
	if !util.IsUUID(id) {
		return ClientCompany{}, ErrNotFound
	}
	var cc ClientCompany
	if err := get(ctx, q, &cc, `SELECT `+clientCompanyColumns+` FROM client_companies cc WHERE cc.id = $1 AND cc.company_id = $2`, id, scope.CompanyID()); err != nil {
		return ClientCompany{}, err
	}
	return cc, nil
}

func (s *PostgresStore) GetClientCompanyDetail(ctx context.Context, scope tenant.Scope, id string) (ClientCompanyDetail, error) {
	cc, err := s.GetClientCompany(ctx, scope, id)
	if err != nil {
		return ClientCompanyDetail{}, err
	}
	detail := ClientCompanyDetail{ClientCompany: cc}
	if err := selectRows(ctx, s.db, &detail.Contacts, `
		SELECT `+contactColumns+`
		FROM client_contacts ct JOIN client_companies cc ON cc.id = ct.client_company_id
		WHERE ct.client_company_id = $1
		ORDER BY ct.last_name, ct.first_name, ct.id
	`, cc.ID); err != nil {
		return ClientCompanyDetail{}, fmt.Errorf("load contacts: %w", err)
	}
	if err := selectRows(ctx, s.db, &detail.Offers, `
		SELECT `+offerColumns+`
		FROM job_offers o LEFT JOIN client_companies cc ON cc.id = o.client_company_id
		WHERE o.client_company_id = $1 AND o.company_id = $2
		ORDER BY o.created_at DESC, o.id DESC
	`, cc.ID, scope.CompanyID()); err != nil {
		return ClientCompanyDetail{}, fmt.Errorf("load client offers: %w", err)
	}
	detail.ContactCount = len(detail.Contacts)
	detail.OfferCount = len(detail.Offers)
	detail.Contacts = emptyIfNil(detail.Contacts)
	detail.Offers = emptyIfNil(detail.Offers)
	return detail, nil
}

// GetContact resolves a contact through its client company, so a contact is
// only visible to the tenant owning that company.
func (s *PostgresStore) GetContact(ctx context.Context, scope tenant.Scope, id string) (Contact, error) {
	return s.getContact(ctx, s.db, scope, id)
}

func (s *PostgresStore) getContact(ctx context.Context, q querier, scope tenant.Scope, id string) (Contact, error) {
	if err := requireScope(scope); err != nil {
		return Contact{}, err
	}
	if !util.IsUUID(id) {
		return Contact{}, ErrNotFound
	}
	var c Contact
	if err := get(ctx, q, &c, `
		SELECT `+contactColumns+`
		FROM client_contacts ct JOIN client_companies cc ON cc.id = ct.client_company_id
		WHERE ct.id = $1 AND cc.company_id = $2
	`, id, scope.CompanyID()); err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, scope tenant.Scope, clientCompanyID string, f ContactFields) (Contact, error) {
	if err := requireScope(scope); err != nil {
		return Contact{}, err
	}
	if !util.IsUUID(clientCompanyID) {
		return Contact{}, ErrNotFound
	}
	var c Contact
	err := get(ctx, s.db, &c, `
		WITH ins AS (
			INSERT INTO client_contacts (id, client_company_id, first_name, last_name, email, phone, position)
			SELECT $1, cc.id, $2, $3, $4, $5, $6 FROM client_companies cc WHERE cc.id = $7 AND cc.company_id = $8
			RETURNING *
		)
		SELECT ins.id, ins.client_company_id, $8::uuid AS company_id, ins.first_name, ins.last_name, ins.email,
			ins.phone, ins.position, ins.created_at, ins.updated_at
		FROM ins
	`, util.NewID(), f.FirstName, f.LastName, f.Email, f.Phone, f.Position, clientCompanyID, scope.CompanyID())
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

var contactUpdatable = map[string]bool{
	"first_name": true, "last_name": true, "email": true, "phone": true, "position": true,
}

func (s *PostgresStore) UpdateContact(ctx context.Context, scope tenant.Scope, id string, changes Changes) (Contact, error) {
	if len(changes) == 0 {
		return s.GetContact(ctx, scope, id)
	}
	if err := requireScope(scope); err != nil {
		return Contact{}, err
	}
	if !util.IsUUID(id) {
		return Contact{}, ErrNotFound
	}
	var a args
	set, err := changes.setClause(contactUpdatable, &a)
	if err != nil {
		return Contact{}, err
	}
	idArg, companyArg := a.add(id), a.add(scope.CompanyID())
	query := `
		UPDATE client_contacts AS ct SET ` + set + `, updated_at = NOW()
		FROM client_companies cc
		WHERE ct.id = ` + idArg + ` AND cc.id = ct.client_company_id AND cc.company_id = ` + companyArg + `
		RETURNING ` + contactColumns
	var c Contact
	if err := get(ctx, s.db, &c, query, a...); err != nil {
		return Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}
