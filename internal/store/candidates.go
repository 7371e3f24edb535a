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

// MaxTagsPerCandidate caps the tags attached to one candidate.
const MaxTagsPerCandidate = 20

const candidateColumns = `c.id, c.company_id, c.first_name, c.last_name, c.title, c.email, c.phone,
	c.city, c.linkedin_url, c.summary, c.photo_key, c.cv_key, c.cv_file_name, c.created_at, c.updated_at`

var candidateUpdatable = map[string]bool{
	"first_name": true, "last_name": true, "title": true, "email": true, "phone": true,
	"city": true, "linkedin_url": true, "summary": true,
}

type CandidateListItem struct {
	Candidate
	Tags      []CandidateTag `db:"-" json:"tags"`
	Languages []Language     `db:"-" json:"languages"`
}

type CandidateDetail struct {
	Candidate
	Languages   []Language     `json:"languages"`
	Experiences []Experience   `json:"experiences"`
	Formations  []Formation    `json:"formations"`
	Tags        []CandidateTag `json:"tags"`
}

// ListCandidates returns one keyset page in (created_at DESC, id DESC)
// order. A cursor naming a row that is not a visible candidate is rejected.
func (s *PostgresStore) ListCandidates(ctx context.Context, scope tenant.Scope, filter CandidateFilter, cursor paginate.Cursor) (paginate.Page[CandidateListItem], error) {
	if err := requireScope(scope); err != nil {
		return paginate.Page[CandidateListItem]{}, err
	}
	var a args
	where := []string{"c.company_id = " + a.add(scope.CompanyID())}

	if term := strings.TrimSpace(filter.Search); term != "" {
		p := a.add(util.LikePattern(term))
		where = append(where, fmt.Sprintf(`(c.first_name ILIKE %[1]s ESCAPE '\' OR c.last_name ILIKE %[1]s ESCAPE '\'
			OR (c.first_name || ' ' || c.last_name) ILIKE %[1]s ESCAPE '\')`, p))
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		where = append(where, "LOWER(c.city) = LOWER("+a.add(city)+")")
	}
	if lang := strings.TrimSpace(filter.Language); lang != "" {
		where = append(where, `EXISTS (SELECT 1 FROM candidate_languages l
			WHERE l.candidate_id = c.id AND LOWER(l.name) = LOWER(`+a.add(lang)+`))`)
	}
	if filter.TagID != "" {
		if !util.IsUUID(filter.TagID) {
			return paginate.Trim[CandidateListItem](nil, cursor.Limit, candidateItemID), nil
		}
		where = append(where, `EXISTS (SELECT 1 FROM candidate_tags ct
			WHERE ct.candidate_id = c.id AND ct.tag_id = `+a.add(filter.TagID)+`)`)
	}
	if cursor.After != "" {
		if err := s.checkCursor(ctx, "candidates", scope, cursor.After); err != nil {
			return paginate.Page[CandidateListItem]{}, err
		}
		where = append(where, `(c.created_at, c.id) < (SELECT created_at, id FROM candidates WHERE id = `+a.add(cursor.After)+`)`)
	}

	query := `SELECT ` + candidateColumns + ` FROM candidates c WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY c.created_at DESC, c.id DESC LIMIT ` + a.add(cursor.FetchSize())

	var rows []CandidateListItem
	if err := selectRows(ctx, s.db, &rows, query, a...); err != nil {
		return paginate.Page[CandidateListItem]{}, fmt.Errorf("list candidates: %w", err)
	}
	page := paginate.Trim(rows, cursor.Limit, candidateItemID)
	if err := s.attachSummaries(ctx, page.Items); err != nil {
		return paginate.Page[CandidateListItem]{}, err
	}
	return page, nil
}

func candidateItemID(c CandidateListItem) string { return c.ID }

// checkCursor verifies that the cursor row exists in the tenant. table is a
// constant supplied by the caller.
func (s *PostgresStore) checkCursor(ctx context.Context, table string, scope tenant.Scope, id string) error {
	if !util.IsUUID(id) {
		return ErrInvalidCursor
	}
	var exists bool
	err := get(ctx, s.db, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1 AND company_id = $2)`, id, scope.CompanyID())
	if err != nil {
		return fmt.Errorf("check cursor: %w", err)
	}
	if !exists {
		return ErrInvalidCursor
	}
	return nil
}

func (s *PostgresStore) attachSummaries(ctx context.Context, items []CandidateListItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	tags, err := s.tagsFor(ctx, s.db, ids)
	if err != nil {
		return err
	}
	langs, err := s.languagesFor(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Tags = emptyIfNil(tags[items[i].ID])
		items[i].Languages = emptyIfNil(langs[items[i].ID])
	}
	return nil
}

func (s *PostgresStore) tagsFor(ctx context.Context, q querier, candidateIDs []string) (map[string][]CandidateTag, error) {
	var rows []CandidateTag
	err := selectRows(ctx, q, &rows, `
		SELECT ct.candidate_id, t.id, t.name
		FROM candidate_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.candidate_id = ANY($1::uuid[])
		ORDER BY t.name, t.id
	`, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidate tags: %w", err)
	}
	out := make(map[string][]CandidateTag, len(candidateIDs))
	for _, row := range rows {
		out[row.CandidateID] = append(out[row.CandidateID], row)
	}
	return out, nil
}

func (s *PostgresStore) languagesFor(ctx context.Context, q querier, candidateIDs []string) (map[string][]Language, error) {
	var rows []Language
	err := selectRows(ctx, q, &rows, `
		SELECT id, candidate_id, name, level, created_at
		FROM candidate_languages
		WHERE candidate_id = ANY($1::uuid[])
		ORDER BY created_at, id
	`, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidate languages: %w", err)
	}
	out := make(map[string][]Language, len(candidateIDs))
	for _, row := range rows {
		out[row.CandidateID] = append(out[row.CandidateID], row)
	}
	return out, nil
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, scope tenant.Scope, fields CandidateFields) (Candidate, error) {
	if err := requireScope(scope); err != nil {
		return Candidate{}, err
	}
	var c Candidate
	err := get(ctx, s.db, &c, `
		INSERT INTO candidates AS c (id, company_id, first_name, last_name, title, email, phone, city, linkedin_url, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+candidateColumns,
		util.NewID(), scope.CompanyID(), fields.FirstName, fields.LastName, fields.Title, fields.Email,
		fields.Phone, fields.City, fields.LinkedinURL, fields.Summary)
	if err != nil {
		return Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, scope tenant.Scope, id string) (Candidate, error) {
	return s.getCandidate(ctx, s.db, scope, id, false)
}

func (s *PostgresStore) getCandidate(ctx context.Context, q querier, scope tenant.Scope, id string, lock bool) (Candidate, error) {
	if err := requireScope(scope); err != nil {
		return Candidate{}, err
	}
	if !util.IsUUID(id) {
		return Candidate{}, ErrNotFound
	}
	query := `SELECT ` + candidateColumns + ` FROM candidates c WHERE c.id = $1 AND c.company_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var c Candidate
	if err := get(ctx, q, &c, query, id, scope.CompanyID()); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetCandidateDetail(ctx context.Context, scope tenant.Scope, id string) (CandidateDetail, error) {
	c, err := s.GetCandidate(ctx, scope, id)
	if err != nil {
		return CandidateDetail{}, err
	}
	detail := CandidateDetail{Candidate: c}
	ids := []string{c.ID}

	langs, err := s.languagesFor(ctx, s.db, ids)
	if err != nil {
		return CandidateDetail{}, err
	}
	tags, err := s.tagsFor(ctx, s.db, ids)
	if err != nil {
		return CandidateDetail{}, err
	}
	detail.Languages = emptyIfNil(langs[c.ID])
	detail.Tags = emptyIfNil(tags[c.ID])

	if err := selectRows(ctx, s.db, &detail.Experiences, `
		SELECT id, candidate_id, title, company, start_date, end_date, description, created_at
		FROM experiences WHERE candidate_id = $1 ORDER BY start_date DESC, id
	`, c.ID); err != nil {
		return CandidateDetail{}, fmt.Errorf("load experiences: %w", err)
	}
	if err := selectRows(ctx, s.db, &detail.Formations, `
		SELECT id, candidate_id, degree, field, school, start_date, end_date, created_at
		FROM formations WHERE candidate_id = $1 ORDER BY start_date DESC, id
	`, c.ID); err != nil {
		return CandidateDetail{}, fmt.Errorf("load formations: %w", err)
	}
	detail.Experiences = emptyIfNil(detail.Experiences)
	detail.Formations = emptyIfNil(detail.Formations)
	return detail, nil
}

func (s *PostgresStore) UpdateCandidate(ctx context.Context, scope tenant.Scope, id string, changes Changes) (Candidate, error) {
	if len(changes) == 0 {
		return s.GetCandidate(ctx, scope, id)
	}
	if err := requireScope(scope); err != nil {
		return Candidate{}, err
	}
	if !util.IsUUID(id) {
		return Candidate{}, ErrNotFound
	}
	var a args
	set, err := changes.setClause(candidateUpdatable, &a)
	if err != nil {
		return Candidate{}, err
	}
	query := `UPDATE candidates AS c SET ` + set + `, updated_at = NOW()
		WHERE c.id = ` + a.add(id) + ` AND c.company_id = ` + a.add(scope.CompanyID()) + `
		RETURNING ` + candidateColumns
	var c Candidate
	if err := get(ctx, s.db, &c, query, a...); err != nil {
		return Candidate{}, fmt.Errorf("update candidate: %w", err)
	}
	return c, nil
}

// DeleteCandidate removes the candidate with its nested rows, notes and
// applications, and returns the deleted row so the caller can clean up stored
// files.
func (s *PostgresStore) DeleteCandidate(ctx context.Context, scope tenant.Scope, id string) (Candidate, error) {
	if err := requireScope(scope); err != nil {
		return Candidate{}, err
	}
	if !util.IsUUID(id) {
		return Candidate{}, ErrNotFound
	}
	var c Candidate
	err := get(ctx, s.db, &c, `DELETE FROM candidates AS c WHERE c.id = $1 AND c.company_id = $2 RETURNING `+candidateColumns, id, scope.CompanyID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Candidate{}, ErrNotFound
		}
		return Candidate{}, fmt.Errorf("delete candidate: %w", err)
	}
	return c, nil
}

// SetCandidatePhoto stores a new photo key and returns the previous one.
func (s *PostgresStore) SetCandidatePhoto(ctx context.Context, scope tenant.Scope, id string, key *string) (*string, error) {
	var previous *string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCandidate(ctx, tx, scope, id, true)
		if err != nil {
			return err
		}
		previous = c.PhotoKey
		_, err = exec(ctx, tx, `UPDATE candidates SET photo_key = $1, updated_at = NOW() WHERE id = $2`, key, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// SetCandidateCV stores a new CV key and file name and returns the previous
// key. Nil values clear the CV.
func (s *PostgresStore) SetCandidateCV(ctx context.Context, scope tenant.Scope, id string, key, fileName *string) (*string, error) {
	var previous *string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCandidate(ctx, tx, scope, id, true)
		if err != nil {
			return err
		}
		previous = c.CVKey
		_, err = exec(ctx, tx, `UPDATE candidates SET cv_key = $1, cv_file_name = $2, updated_at = NOW() WHERE id = $3`, key, fileName, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func (s *PostgresStore) ListDistinctCities(ctx context.Context, scope tenant.Scope) ([]string, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var cities []string
	err := selectRows(ctx, s.db, &cities, `
		SELECT DISTINCT city FROM candidates
		WHERE company_id = $1 AND city IS NOT NULL AND city <> ''
		ORDER BY city
	`, scope.CompanyID())
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return emptyIfNil(cities), nil
}

func (s *PostgresStore) ListDistinctLanguageNames(ctx context.Context, scope tenant.Scope) ([]string, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var names []string
	err := selectRows(ctx, s.db, &names, `
		SELECT DISTINCT l.name FROM candidate_languages l
		JOIN candidates c ON c.id = l.candidate_id
		WHERE c.company_id = $1
		ORDER BY l.name
	`, scope.CompanyID())
	if err != nil {
		return nil, fmt.Errorf("list language names: %w", err)
	}
	return emptyIfNil(names), nil
}
