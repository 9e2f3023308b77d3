package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	errs "github.com/frahmantamala/settlement/internal"
)

// OIDCVerifier checks tokens against the keys the issuer publishes.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	roleClaim string
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID, roleClaim string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", issuer, err)
	}

	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), roleClaim), nil
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, roleClaim string) *OIDCVerifier {
	return &OIDCVerifier{verifier: v, roleClaim: roleClaim}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrInvalidToken.WithCause(err)
	}

	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errs.ErrInvalidToken.WithCause(err)
	}

	return principalFromClaims(claims, v.roleClaim)
}
