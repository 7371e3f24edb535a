package store

import (
	"context"
	"encoding/json"
	"fmt"

	"cabinet/api/internal/paginate"
	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

const noteColumns = `n.id, n.company_id, n.author_id, u.name AS author_name, n.candidate_id, n.job_offer_id,
	n.content::text AS content, n.created_at, n.updated_at`

const noteFrom = ` FROM notes n JOIN users u ON u.id = n.author_id `

// NoteTarget selects the entity notes hang off. Both empty means free notes.
type NoteTarget struct {
	CandidateID string
	JobOfferID  string
}

func finishNotes(notes []Note) []Note {
	for i := range notes {
		notes[i].Content = json.RawMessage(notes[i].RawContent)
	}
	return emptyIfNil(notes)
}

// ListNotes returns the notes of one candidate or one offer, newest first.
// The entity itself must belong to the tenant.
func (s *PostgresStore) ListNotes(ctx context.Context, scope tenant.Scope, target NoteTarget) ([]Note, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var column, entityID string
	switch {
	case target.CandidateID != "":
		if _, err := s.GetCandidate(ctx, scope, target.CandidateID); err != nil {
			return nil, err
		}
		column, entityID = "n.candidate_id", target.CandidateID
	case target.JobOfferID != "":
		if _, err := s.GetOffer(ctx, scope, target.JobOfferID); err != nil {
			return nil, err
		}
		column, entityID = "n.job_offer_id", target.JobOfferID
	default:
		return nil, fmt.Errorf("list notes: no target")
	}
	var notes []Note
	err := selectRows(ctx, s.db, &notes, `SELECT `+noteColumns+noteFrom+`
		WHERE n.company_id = $1 AND `+column+` = $2
		ORDER BY n.created_at DESC, n.id DESC
	`, scope.CompanyID(), entityID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return finishNotes(notes), nil
}

// ListFreeNotes pages through notes attached to neither a candidate nor an
// offer.
func (s *PostgresStore) ListFreeNotes(ctx context.Context, scope tenant.Scope, cursor paginate.Cursor) (paginate.Page[Note], error) {
	if err := requireScope(scope); err != nil {
		return paginate.Page[Note]{}, err
	}
	var a args
	where := "n.company_id = " + a.add(scope.CompanyID()) + " AND n.candidate_id IS NULL AND n.job_offer_id IS NULL"
	if cursor.After != "" {
		if err := s.checkCursor(ctx, "notes", scope, cursor.After); err != nil {
			return paginate.Page[Note]{}, err
		}
		where += ` AND (n.created_at, n.id) < (SELECT created_at, id FROM notes WHERE id = ` + a.add(cursor.After) + `)`
	}
	var notes []Note
	err := selectRows(ctx, s.db, &notes, `SELECT `+noteColumns+noteFrom+` WHERE `+where+`
		ORDER BY n.created_at DESC, n.id DESC LIMIT `+a.add(cursor.FetchSize()), a...)
	if err != nil {
		return paginate.Page[Note]{}, fmt.Errorf("list free notes: %w", err)
	}
	return paginate.Trim(finishNotes(notes), cursor.Limit, func(n Note) string { return n.ID }), nil
}

func (s *PostgresStore) GetNote(ctx context.Context, scope tenant.Scope, id string) (Note, error) {
	if err := requireScope(scope); err != nil {
		return Note{}, err
	}
	if !util.IsUUID(id) {
		return Note{}, ErrNotFound
	}
	var n Note
	if err := get(ctx, s.db, &n, `SELECT `+noteColumns+noteFrom+` WHERE n.id = $1 AND n.company_id = $2`, id, scope.CompanyID()); err != nil {
		return Note{}, err
	}
	n.Content = json.RawMessage(n.RawContent)
	return n, nil
}

// CreateNote stores a note authored by the scope's user. The target entity,
// when set, must belong to the tenant.
func (s *PostgresStore) CreateNote(ctx context.Context, scope tenant.Scope, target NoteTarget, content json.RawMessage) (Note, error) {
	if err := requireScope(scope); err != nil {
		return Note{}, err
	}
	var candidateID, offerID *string
	if target.CandidateID != "" {
		if _, err := s.GetCandidate(ctx, scope, target.CandidateID); err != nil {
			return Note{}, err
		}
		candidateID = &target.CandidateID
	}
	if target.JobOfferID != "" {
		if _, err := s.GetOffer(ctx, scope, target.JobOfferID); err != nil {
			return Note{}, err
		}
		offerID = &target.JobOfferID
	}
	id := util.NewID()
	_, err := exec(ctx, s.db, `
		INSERT INTO notes (id, company_id, author_id, candidate_id, job_offer_id, content)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, id, scope.CompanyID(), scope.UserID(), candidateID, offerID, string(content))
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return s.GetNote(ctx, scope, id)
}

// UpdateNoteContent rewrites a note's content. The author check is part of
// the statement so a note can never be changed by anyone else.
func (s *PostgresStore) UpdateNoteContent(ctx context.Context, scope tenant.Scope, id string, content json.RawMessage) (Note, error) {
	if err := requireScope(scope); err != nil {
		return Note{}, err
	}
	err := execOne(ctx, s.db, `
		UPDATE notes SET content = $1::jsonb, updated_at = NOW()
		WHERE id = $2 AND company_id = $3 AND author_id = $4
	`, string(content), id, scope.CompanyID(), scope.UserID())
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return s.GetNote(ctx, scope, id)
}

func (s *PostgresStore) DeleteNote(ctx context.Context, scope tenant.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	err := execOne(ctx, s.db, `DELETE FROM notes WHERE id = $1 AND company_id = $2 AND author_id = $3`,
		id, scope.CompanyID(), scope.UserID())
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
