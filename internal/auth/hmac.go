package auth

import (
	"context"
	"errors"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier verifies HS256 tokens minted by a self-hosted issuer that shares the secret.
type HMACVerifier struct {
	secret    []byte
	parser    *jwt.Parser
	roleClaim string
}

func NewHMACVerifier(secret, issuer, audience, roleClaim string) *HMACVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &HMACVerifier{
		secret:    []byte(secret),
		parser:    jwt.NewParser(opts...),
		roleClaim: roleClaim,
	}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrInvalidToken.WithCause(err)
	}

	return principalFromClaims(claims, v.roleClaim)
}
