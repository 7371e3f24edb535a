package store

import (
	"encoding/json"
	"time"
)

type Company struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Siret     string    `db:"siret" json:"siret"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type User struct {
	ID           string    `db:"id" json:"id"`
	CompanyID    string    `db:"company_id" json:"-"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type Candidate struct {
	ID          string    `db:"id" json:"id"`
	CompanyID   string    `db:"company_id" json:"-"`
	FirstName   string    `db:"first_name" json:"firstName"`
	LastName    string    `db:"last_name" json:"lastName"`
	Title       *string   `db:"title" json:"title"`
	Email       *string   `db:"email" json:"email"`
	Phone       *string   `db:"phone" json:"phone"`
	City        *string   `db:"city" json:"city"`
	LinkedinURL *string   `db:"linkedin_url" json:"linkedinUrl"`
	Summary     *string   `db:"summary" json:"summary"`
	PhotoKey    *string   `db:"photo_key" json:"-"`
	CVKey       *string   `db:"cv_key" json:"-"`
	CVFileName  *string   `db:"cv_file_name" json:"cvFileName"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// CandidateFields are the writable scalar columns of a candidate.
type CandidateFields struct {
	FirstName   string
	LastName    string
	Title       *string
	Email       *string
	Phone       *string
	City        *string
	LinkedinURL *string
	Summary     *string
}

type CandidateFilter struct {
	Search   string
	City     string
	Language string
	TagID    string
}

type Language struct {
	ID          string    `db:"id" json:"id"`
	CandidateID string    `db:"candidate_id" json:"candidateId"`
	Name        string    `db:"name" json:"name"`
	Level       string    `db:"level" json:"level"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Experience struct {
	ID          string     `db:"id" json:"id"`
	CandidateID string     `db:"candidate_id" json:"candidateId"`
	Title       string     `db:"title" json:"title"`
	Company     string     `db:"company" json:"company"`
	StartDate   time.Time  `db:"start_date" json:"startDate"`
	EndDate     *time.Time `db:"end_date" json:"endDate"`
	Description *string    `db:"description" json:"description"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

type Formation struct {
	ID          string     `db:"id" json:"id"`
	CandidateID string     `db:"candidate_id" json:"candidateId"`
	Degree      string     `db:"degree" json:"degree"`
	Field       *string    `db:"field" json:"field"`
	School      string     `db:"school" json:"school"`
	StartDate   time.Time  `db:"start_date" json:"startDate"`
	EndDate     *time.Time `db:"end_date" json:"endDate"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

type Tag struct {
	ID         string    `db:"id" json:"id"`
	CompanyID  string    `db:"company_id" json:"-"`
	Name       string    `db:"name" json:"name"`
	UsageCount int       `db:"usage_count" json:"usageCount"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// CandidateTag is a tag as attached to one candidate.
type CandidateTag struct {
	CandidateID string `db:"candidate_id" json:"-"`
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
}

type ClientCompany struct {
	ID           string    `db:"id" json:"id"`
	CompanyID    string    `db:"company_id" json:"-"`
	Name         string    `db:"name" json:"name"`
	Sector       *string   `db:"sector" json:"sector"`
	Website      *string   `db:"website" json:"website"`
	City         *string   `db:"city" json:"city"`
	ContactCount int       `db:"contact_count" json:"contactCount"`
	OfferCount   int       `db:"offer_count" json:"offerCount"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type Contact struct {
	ID              string    `db:"id" json:"id"`
	ClientCompanyID string    `db:"client_company_id" json:"clientCompanyId"`
	CompanyID       string    `db:"company_id" json:"-"`
	FirstName       string    `db:"first_name" json:"firstName"`
	LastName        string    `db:"last_name" json:"lastName"`
	Email           *string   `db:"email" json:"email"`
	Phone           *string   `db:"phone" json:"phone"`
	Position        *string   `db:"position" json:"position"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

type ContactFields struct {
	FirstName string
	LastName  string
	Email     *string
	Phone     *string
	Position  *string
}

const (
	OfferTodo       = "TODO"
	OfferInProgress = "IN_PROGRESS"
	OfferDone       = "DONE"
)

type JobOffer struct {
	ID                string    `db:"id" json:"id"`
	CompanyID         string    `db:"company_id" json:"-"`
	Title             string    `db:"title" json:"title"`
	Description       *string   `db:"description" json:"description"`
	Status            string    `db:"status" json:"status"`
	Location          *string   `db:"location" json:"location"`
	ClientCompanyID   *string   `db:"client_company_id" json:"clientCompanyId"`
	ClientContactID   *string   `db:"client_contact_id" json:"clientContactId"`
	ClientCompanyName *string   `db:"client_company_name" json:"clientCompanyName"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

type OfferFields struct {
	Title           string
	Description     *string
	Status          string
	Location        *string
	ClientCompanyID *string
	ClientContactID *string
}

type OfferFilter struct {
	Status          string
	ClientCompanyID string
	Search          string
}

// LinkedCandidate is a candidate attached to an offer through an application.
type LinkedCandidate struct {
	ID        string    `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Title     *string   `db:"title" json:"title"`
	LinkedAt  time.Time `db:"linked_at" json:"linkedAt"`
}

type Note struct {
	ID          string          `db:"id" json:"id"`
	CompanyID   string          `db:"company_id" json:"-"`
	AuthorID    string          `db:"author_id" json:"authorId"`
	AuthorName  string          `db:"author_name" json:"authorName"`
	CandidateID *string         `db:"candidate_id" json:"candidateId"`
	JobOfferID  *string         `db:"job_offer_id" json:"jobOfferId"`
	Content     json.RawMessage `db:"-" json:"content"`
	RawContent  string          `db:"content" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

type Invitation struct {
	ID          string     `db:"id" json:"id"`
	CompanyID   string     `db:"company_id" json:"-"`
	CompanyName string     `db:"company_name" json:"companyName"`
	Email       string     `db:"email" json:"email"`
	Token       string     `db:"token" json:"token"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expiresAt"`
	UsedAt      *time.Time `db:"used_at" json:"usedAt"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revokedAt"`
	CreatedBy   *string    `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

type InvitationStatus string

const (
	InvitationActive  InvitationStatus = "active"
	InvitationUsed    InvitationStatus = "used"
	InvitationRevoked InvitationStatus = "revoked"
	InvitationExpired InvitationStatus = "expired"
)

// Status is derived from the timestamps only; used wins over revoked, and
// revoked over expired.
func (i Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.UsedAt != nil:
		return InvitationUsed
	case i.RevokedAt != nil:
		return InvitationRevoked
	case i.ExpiresAt.Before(now):
		return InvitationExpired
	default:
		return InvitationActive
	}
}
