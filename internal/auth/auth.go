package auth

import (
	"context"
	"fmt"
	"strings"

	errs "github.com/frahmantamala/settlement/internal"
)

// Principal is the verified identity behind a bearer token.
type Principal struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// Verifier checks a raw bearer token's signature and standard claims.
// Implementations never return a Principal for an unverified token.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return errs.ContextWithUserID(ctx, p.Subject)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func principalFromClaims(claims map[string]interface{}, roleClaim string) (*Principal, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errs.ErrInvalidToken.WithMessage("token has no subject")
	}

	p := &Principal{Subject: sub}
	p.Email, _ = claims["email"].(string)
	p.Name, _ = claims["name"].(string)

	switch v := claims[roleClaim].(type) {
	case string:
		for _, r := range strings.FieldsFunc(v, func(c rune) bool { return c == ',' || c == ' ' }) {
			p.Roles = append(p.Roles, r)
		}
	case []interface{}:
		for _, r := range v {
			p.Roles = append(p.Roles, fmt.Sprint(r))
		}
	case []string:
		p.Roles = append(p.Roles, v...)
	}

	return p, nil
}
