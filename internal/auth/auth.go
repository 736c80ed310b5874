// Package auth decides whether the sync engine is allowed to start: it
// inspects the configured access token's JWT claims for expiry and an admin
// role. Signature verification is the backend's job — this client only needs
// enough to avoid dialling with credentials that cannot work.
package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider exposes the authentication state the sync controller consumes.
type Provider interface {
	IsAuthenticated() bool
	HasAdminRole() bool
	Token() string
}

// Claims mirrors the backend's JWT payload. Role may be a single string or a
// list depending on backend version.
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     roleList `json:"role"`
	jwt.RegisteredClaims
}

// roleList tolerates both `"role": "admin"` and `"role": ["admin"]`.
type roleList []string

func (r *roleList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*r = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*r = roleList{single}
	return nil
}

// TokenSource is a Provider backed by a static token string (from config or
// environment).
type TokenSource struct {
	token  string
	claims *Claims
}

// NewTokenSource parses the token's claims without verifying the signature.
// An unparseable token still yields a usable source: the token is passed
// through, but the role check fails closed.
func NewTokenSource(token string) *TokenSource {
	ts := &TokenSource{token: strings.TrimSpace(token)}
	if ts.token == "" {
		return ts
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(ts.token, claims); err == nil {
		ts.claims = claims
	}
	return ts
}

// Token returns the raw bearer token, or "" when none is configured.
func (ts *TokenSource) Token() string {
	return ts.token
}

// IsAuthenticated reports whether a token is present and, when it carries an
// expiry claim, not yet expired.
func (ts *TokenSource) IsAuthenticated() bool {
	if ts.token == "" {
		return false
	}
	if ts.claims != nil && ts.claims.ExpiresAt != nil {
		return ts.claims.ExpiresAt.After(time.Now())
	}
	return true
}

// HasAdminRole reports whether the token carries an admin or super_admin
// role claim. Tokens whose claims could not be parsed fail closed.
func (ts *TokenSource) HasAdminRole() bool {
	if ts.claims == nil {
		return false
	}
	for _, role := range ts.claims.Role {
		switch strings.ToLower(role) {
		case "admin", "super_admin":
			return true
		}
	}
	return false
}
