// Package tenant resolves the acting company of a request and carries it as
// a Scope through every data-access call.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cabinet/api/internal/auth"
)

// ErrNoTenant is returned when a procedure that needs a company runs for an
// anonymous caller.
var ErrNoTenant = errors.New("no tenant in scope")

// Principal is the resolved identity of a caller. Both ids are empty for an
// anonymous caller.
type Principal struct {
	UserID    string
	CompanyID string
}

func (p Principal) Authenticated() bool {
	return p.UserID != "" && p.CompanyID != ""
}

// Scope is the tenant a data-access call runs under. The zero value is not
// valid; a Scope is only obtained from an authenticated Principal.
type Scope struct {
	companyID string
	userID    string
}

// Scope returns the tenant scope of an authenticated principal.
func (p Principal) Scope() (Scope, error) {
	if !p.Authenticated() {
		return Scope{}, ErrNoTenant
	}
	return Scope{companyID: p.CompanyID, userID: p.UserID}, nil
}

func (s Scope) CompanyID() string { return s.companyID }
func (s Scope) UserID() string    { return s.userID }
func (s Scope) Valid() bool       { return s.companyID != "" && s.userID != "" }

// Owns reports whether the row's company is the scope's company.
func (s Scope) Owns(companyID string) bool {
	return s.Valid() && companyID == s.companyID
}

// MembershipLookup returns the company a user belongs to.
type MembershipLookup interface {
	CompanyOfUser(ctx context.Context, userID string) (string, error)
}

// TokenVerifier checks an access token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Resolver turns a bearer token into a Principal. It does not cache anything
// across requests.
type Resolver struct {
	tokens  TokenVerifier
	members MembershipLookup
}

func NewResolver(tokens TokenVerifier, members MembershipLookup) *Resolver {
	return &Resolver{tokens: tokens, members: members}
}

// Resolve returns the anonymous principal for an empty token. An invalid or
// expired token is an auth error. Lookup failures are wrapped so the caller
// can tell a deleted user from an unreachable database.
func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, nil
	}
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	companyID, err := r.members.CompanyOfUser(ctx, claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve company of %s: %w", claims.Subject, err)
	}
	if companyID == "" {
		return Principal{}, ErrNoTenant
	}
	return Principal{UserID: claims.Subject, CompanyID: companyID}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
