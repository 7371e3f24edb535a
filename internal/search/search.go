package search

import (
	"context"
	"time"

	"cabinet/api/internal/tenant"
)

const (
	MinQueryLength = 2
	DefaultLimit   = 8
	MaxLimit       = 50
)

// ResultType labels a group of hits.
type ResultType string

const (
	ResultCandidate ResultType = "candidate"
	ResultOffer     ResultType = "offer"
)

// Hit is a single search match.
type Hit struct {
	Type      ResultType `db:"-" json:"type"`
	ID        string     `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	Subtitle  *string    `db:"subtitle" json:"subtitle"`
	CreatedAt time.Time  `db:"created_at" json:"-"`
}

// Query describes a search request.
type Query struct {
	Text  string
	Limit int
}

// Response carries one group per entity type. Each group keeps the order in
// which rows matched; there is no relevance ranking.
type Response struct {
	Query      string `json:"query"`
	Candidates []Hit  `json:"candidates"`
	Offers     []Hit  `json:"offers"`
}

// Searcher runs the substring match for each entity type. pattern is an
// escaped ILIKE pattern.
type Searcher interface {
	Candidates(ctx context.Context, scope tenant.Scope, pattern string, limit int) ([]Hit, error)
	Offers(ctx context.Context, scope tenant.Scope, pattern string, limit int) ([]Hit, error)
}
