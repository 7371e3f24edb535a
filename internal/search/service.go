package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"cabinet/api/internal/tenant"
	"cabinet/api/internal/util"
)

// Service validates a query, then asks the searcher for each group
// independently. A failing group is logged and returned empty so the other
// group still reaches the caller.
type Service struct {
	searcher Searcher
}

func NewService(searcher Searcher) *Service {
	return &Service{searcher: searcher}
}

// Search assumes q.Text has already been validated to MinQueryLength.
func (s *Service) Search(ctx context.Context, scope tenant.Scope, q Query) Response {
	text := strings.TrimSpace(q.Text)
	resp := Response{Query: text, Candidates: []Hit{}, Offers: []Hit{}}
	if len([]rune(text)) < MinQueryLength {
		return resp
	}
	limit := clampLimit(q.Limit)
	pattern := util.LikePattern(text)

	candidates, err := s.searcher.Candidates(ctx, scope, pattern, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("group", string(ResultCandidate)).Msg("search failed")
	} else {
		resp.Candidates = nonNil(candidates)
	}
	offers, err := s.searcher.Offers(ctx, scope, pattern, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("group", string(ResultOffer)).Msg("search failed")
	} else {
		resp.Offers = nonNil(offers)
	}
	return resp
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func nonNil(r []Hit) []Hit {
	if r == nil {
		return []Hit{}
	}
	return r
}
