package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"cabinet/api/internal/tenant"
)

// PgSearch implements Searcher with case-insensitive ILIKE matching over an
// explicit list of columns.
type PgSearch struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db, timeout: 5 * time.Second}
}

const candidateSearchSQL = `
	SELECT c.id, c.first_name || ' ' || c.last_name AS title, c.title AS subtitle, c.created_at
	FROM candidates c
	WHERE c.company_id = $1 AND (
		c.first_name ILIKE $2 ESCAPE '\'
		OR c.last_name ILIKE $2 ESCAPE '\'
		OR (c.first_name || ' ' || c.last_name) ILIKE $2 ESCAPE '\'
		OR c.title ILIKE $2 ESCAPE '\'
		OR c.summary ILIKE $2 ESCAPE '\'
		OR c.city ILIKE $2 ESCAPE '\'
		OR EXISTS (SELECT 1 FROM candidate_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.candidate_id = c.id AND t.name ILIKE $2 ESCAPE '\')
		OR EXISTS (SELECT 1 FROM candidate_languages l
			WHERE l.candidate_id = c.id AND l.name ILIKE $2 ESCAPE '\')
		OR EXISTS (SELECT 1 FROM experiences e
			WHERE e.candidate_id = c.id AND (e.title ILIKE $2 ESCAPE '\' OR e.company ILIKE $2 ESCAPE '\' OR e.description ILIKE $2 ESCAPE '\'))
		OR EXISTS (SELECT 1 FROM formations f
			WHERE f.candidate_id = c.id AND (f.degree ILIKE $2 ESCAPE '\' OR f.field ILIKE $2 ESCAPE '\' OR f.school ILIKE $2 ESCAPE '\'))
	)
	ORDER BY c.created_at DESC, c.id DESC
	LIMIT $3`

const offerSearchSQL = `
	SELECT o.id, o.title, cc.name AS subtitle, o.created_at
	FROM job_offers o LEFT JOIN client_companies cc ON cc.id = o.client_company_id
	WHERE o.company_id = $1 AND (o.title ILIKE $2 ESCAPE '\' OR o.description ILIKE $2 ESCAPE '\')
	ORDER BY o.created_at DESC, o.id DESC
	LIMIT $3`

func (p *PgSearch) Candidates(ctx context.Context, scope tenant.Scope, pattern string, limit int) ([]Hit, error) {
	return p.run(ctx, scope, ResultCandidate, candidateSearchSQL, pattern, limit)
}

func (p *PgSearch) Offers(ctx context.Context, scope tenant.Scope, pattern string, limit int) ([]Hit, error) {
	return p.run(ctx, scope, ResultOffer, offerSearchSQL, pattern, limit)
}

func (p *PgSearch) run(ctx context.Context, scope tenant.Scope, kind ResultType, query, pattern string, limit int) ([]Hit, error) {
	if !scope.Valid() {
		return nil, tenant.ErrNoTenant
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var hits []Hit
	if err := sqlscan.Select(ctx, p.db, &hits, query, scope.CompanyID(), pattern, limit); err != nil {
		return nil, fmt.Errorf("search %ss: %w", kind, err)
	}
	for i := range hits {
		hits[i].Type = kind
	}
	return hits, nil
}
