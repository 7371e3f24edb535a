// Package auth issues and verifies the credentials of a session: a short-lived
// signed access token and an opaque refresh token that is only ever stored
// hashed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cabinet/api/internal/util"
)

// accessPrefix versions the token layout and keeps a refresh token from ever
// parsing as an access token.
const accessPrefix = "cat1"

// clockSkew tolerates small differences between API replicas.
const clockSkew = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims carry only the user identity. The tenant is resolved from the user
// row on every request so that a token never outlives a membership change.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	ID        string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c Claims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0) }

// AccessToken is a signed token and the instant it stops being accepted.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Signer mints and checks access tokens with one HMAC secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a fresh access token for the user.
func (s *Signer) Issue(userID, email string) (AccessToken, error) {
	if userID == "" {
		return AccessToken{}, errors.New("issue access token: empty subject")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)
	value, err := s.Sign(Claims{
		Subject:   userID,
		Email:     email,
		ID:        util.NewID(),
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Sign encodes the given claims as they are.
func (s *Signer) Sign(claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return accessPrefix + "." + payload + "." + s.mac(payload), nil
}

// Verify checks layout, signature and expiry. Every malformed input is
// ErrInvalidToken; a well-signed token past its expiry is ErrExpiredToken.
func (s *Signer) Verify(token string) (Claims, error) {
	prefix, rest, ok := strings.Cut(token, ".")
	if !ok || prefix != accessPrefix {
		return Claims{}, ErrInvalidToken
	}
	payload, signature, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(signature, ".") {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(s.mac(payload))) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == 0 {
		return Claims{}, ErrInvalidToken
	}
	now := s.now()
	if claims.IssuedAt > now.Add(clockSkew).Unix() {
		return Claims{}, ErrInvalidToken
	}
	if !now.Before(claims.Expiry()) {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (s *Signer) mac(payload string) string {
	sum := hmac.New(sha256.New, s.secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

// RefreshToken is handed to the client once; only Hash is persisted.
type RefreshToken struct {
	Value string
	Hash  string
}

func NewRefreshToken() RefreshToken {
	value := util.NewToken(32)
	return RefreshToken{Value: value, Hash: HashToken(value)}
}

// HashToken is the lookup key of a refresh session.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
