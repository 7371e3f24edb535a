package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

// Nested rows are only reachable through a candidate of the scope's company:
// every statement below joins or guards on candidates.company_id.

func (s *PostgresStore) AddLanguage(ctx context.Context, scope tenant.Scope, candidateID, name, level string) (Language, error) {
	if err := requireScope(scope); err != nil {
		return Language{}, err
	}
	if !util.IsUUID(candidateID) {
		return Language{}, ErrNotFound
	}
	var lang Language
	err := get(ctx, s.db, &lang, `
		INSERT INTO candidate_languages (id, candidate_id, name, level)
		SELECT $1, c.id, $2, $3 FROM candidates c WHERE c.id = $4 AND c.company_id = $5
		RETURNING id, candidate_id, name, level, created_at
	`, util.NewID(), name, level, candidateID, scope.CompanyID())
	if err != nil {
		return Language{}, fmt.Errorf("add language: %w", err)
	}
	return lang, nil
}

func (s *PostgresStore) RemoveLanguage(ctx context.Context, scope tenant.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !util.IsUUID(id) {
		return ErrNotFound
	}
	return execOne(ctx, s.db, `
		DELETE FROM candidate_languages l USING candidates c
		WHERE l.id = $1 AND l.candidate_id = c.id AND c.company_id = $2
	`, id, scope.CompanyID())
}

type ExperienceFields struct {
	Title       string
	Company     string
	StartDate   time.Time
	EndDate     *time.Time
	Description *string
}

const experienceColumns = `e.id, e.candidate_id, e.title, e.company, e.start_date, e.end_date, e.description, e.created_at`

func (s *PostgresStore) AddExperience(ctx context.Context, scope tenant.Scope, candidateID string, f ExperienceFields) (Experience, error) {
	if err := requireScope(scope); err != nil {
		return Experience{}, err
	}
	if !util.IsUUID(candidateID) {
		return Experience{}, ErrNotFound
	}
	var e Experience
	err := get(ctx, s.db, &e, `
		INSERT INTO experiences AS e (id, candidate_id, title, company, start_date, end_date, description)
		SELECT $1, c.id, $2, $3, $4, $5, $6 FROM candidates c WHERE c.id = $7 AND c.company_id = $8
		RETURNING `+experienceColumns,
		util.NewID(), f.Title, f.Company, f.StartDate, f.EndDate, f.Description, candidateID, scope.CompanyID())
	if err != nil {
		return Experience{}, fmt.Errorf("add experience: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) UpdateExperience(ctx context.Context, scope tenant.Scope, id string, f ExperienceFields) (Experience, error) {
	if err := requireScope(scope); err != nil {
		return Experience{}, err
	}
	if !util.IsUUID(id) {
		return Experience{}, ErrNotFound
	}
	var e Experience
	err := get(ctx, s.db, &e, `
		UPDATE experiences AS e
		SET title = $1, company = $2, start_date = $3, end_date = $4, description = $5
		FROM candidates c
		WHERE e.id = $6 AND e.candidate_id = c.id AND c.company_id = $7
		RETURNING `+experienceColumns,
		f.Title, f.Company, f.StartDate, f.EndDate, f.Description, id, scope.CompanyID())
	if err != nil {
		return Experience{}, fmt.Errorf("update experience: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) DeleteExperience(ctx context.Context, scope tenant.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !util.IsUUID(id) {
		return ErrNotFound
	}
	return execOne(ctx, s.db, `
		DELETE FROM experiences e USING candidates c
		WHERE e.id = $1 AND e.candidate_id = c.id AND c.company_id = $2
	`, id, scope.CompanyID())
}

type FormationFields struct {
	Degree    string
	Field     *string
	School    string
	StartDate time.Time
	EndDate   *time.Time
}

const formationColumns = `f.id, f.candidate_id, f.degree, f.field, f.school, f.start_date, f.end_date, f.created_at`

func (s *PostgresStore) AddFormation(ctx context.Context, scope tenant.Scope, candidateID string, f FormationFields) (Formation, error) {
	if err := requireScope(scope); err != nil {
		return Formation{}, err
	}
	if !util.IsUUID(candidateID) {
		return Formation{}, ErrNotFound
	}
	var out Formation
	err := get(ctx, s.db, &out, `
		INSERT INTO formations AS f (id, candidate_id, degree, field, school, start_date, end_date)
		SELECT $1, c.id, $2, $3, $4, $5, $6 FROM candidates c WHERE c.id = $7 AND c.company_id = $8
		RETURNING `+formationColumns,
		util.NewID(), f.Degree, f.Field, f.School, f.StartDate, f.EndDate, candidateID, scope.CompanyID())
	if err != nil {
		return Formation{}, fmt.Errorf("add formation: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateFormation(ctx context.Context, scope tenant.Scope, id string, f FormationFields) (Formation, error) {
	if err := requireScope(scope); err != nil {
		return Formation{}, err
	}
	if !util.IsUUID(id) {
		return Formation{}, ErrNotFound
	}
	var out Formation
	err := get(ctx, s.db, &out, `
		UPDATE formations AS f
		SET degree = $1, field = $2, school = $3, start_date = $4, end_date = $5
		FROM candidates c
		WHERE f.id = $6 AND f.candidate_id = c.id AND c.company_id = $7
		RETURNING `+formationColumns,
		f.Degree, f.Field, f.School, f.StartDate, f.EndDate, id, scope.CompanyID())
	if err != nil {
		return Formation{}, fmt.Errorf("update formation: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteFormation(ctx context.Context, scope tenant.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !util.IsUUID(id) {
		return ErrNotFound
	}
	return execOne(ctx, s.db, `
		DELETE FROM formations f USING candidates c
		WHERE f.id = $1 AND f.candidate_id = c.id AND c.company_id = $2
	`, id, scope.CompanyID())
}

// AddTag finds or creates the tag by exact name in the tenant and attaches
// it. Attaching an already attached tag is a no-op.
func (s *PostgresStore) AddTag(ctx context.Context, scope tenant.Scope, candidateID, name string) (Tag, error) {
	var tag Tag
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCandidate(ctx, tx, scope, candidateID, true)
		if err != nil {
			return err
		}
		if err := get(ctx, tx, &tag, `
			INSERT INTO tags (id, company_id, name) VALUES ($1, $2, $3)
			ON CONFLICT (company_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, company_id, name, created_at
		`, util.NewID(), scope.CompanyID(), name); err != nil {
			return fmt.Errorf("upsert tag: %w", err)
		}

		var attached bool
		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FILTER (WHERE tag_id = $2) > 0, COUNT(*)
			FROM candidate_tags WHERE candidate_id = $1
		`, c.ID, tag.ID).Scan(&attached, &count); err != nil {
			return fmt.Errorf("count candidate tags: %w", err)
		}
		if attached {
			return nil
		}
		if count >= MaxTagsPerCandidate {
			return ErrTagLimit
		}
		if _, err := exec(ctx, tx, `
			INSERT INTO candidate_tags (candidate_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, tag.ID); err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) RemoveTag(ctx context.Context, scope tenant.Scope, candidateID, tagID string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !util.IsUUID(candidateID) || !util.IsUUID(tagID) {
		return ErrNotFound
	}
	return execOne(ctx, s.db, `
		DELETE FROM candidate_tags ct USING candidates c
		WHERE ct.candidate_id = $1 AND ct.tag_id = $2 AND c.id = ct.candidate_id AND c.company_id = $3
	`, candidateID, tagID, scope.CompanyID())
}

func (s *PostgresStore) ListTags(ctx context.Context, scope tenant.Scope) ([]Tag, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var tags []Tag
	err := selectRows(ctx, s.db, &tags, `
		SELECT t.id, t.company_id, t.name, t.created_at, COUNT(ct.candidate_id) AS usage_count
		FROM tags t LEFT JOIN candidate_tags ct ON ct.tag_id = t.id
		WHERE t.company_id = $1
		GROUP BY t.id
		ORDER BY t.name, t.id
	`, scope.CompanyID())
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return emptyIfNil(tags), nil
}
