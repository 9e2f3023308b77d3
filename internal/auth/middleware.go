package auth

import (
	"log/slog"
	"net/http"
	"strings"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/transport"
	"github.com/frahmantamala/settlement/pkg/logger"
)

type Middleware struct {
	*transport.BaseHandler
	verifier   Verifier
	adminRoles []string
}

func NewMiddleware(verifier Verifier, adminRoles []string, lg *slog.Logger) *Middleware {
	return &Middleware{
		BaseHandler: transport.NewBaseHandler(lg),
		verifier:    verifier,
		adminRoles:  adminRoles,
	}
}

// Authenticate rejects requests without a verifiable bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := m.ExtractTokenFromHeader(r)
		if raw == "" {
			m.HandleServiceError(w, errs.ErrInvalidToken.WithMessage("missing bearer token"))
			return
		}

		p, err := m.verifier.Verify(r.Context(), strings.TrimSpace(raw))
		if err != nil {
			m.Logger.Warn("Authenticate: token rejected", "error", err, "path", r.URL.Path)
			m.HandleServiceError(w, err)
			return
		}

		ctx := WithPrincipal(r.Context(), p)
		ctx = logger.With(ctx, "user_id", p.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after Authenticate.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			m.HandleServiceError(w, errs.ErrInvalidToken.WithMessage("missing principal"))
			return
		}

		if !p.HasAnyRole(m.adminRoles...) {
			m.Logger.Warn("RequireAdmin: access denied",
				"user_id", p.Subject,
				"roles", p.Roles,
				"required_roles", m.adminRoles)
			m.HandleServiceError(w, errs.ErrUnauthorizedAccess)
			return
		}

		next.ServeHTTP(w, r)
	})
}
