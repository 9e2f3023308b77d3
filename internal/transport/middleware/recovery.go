package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/pkg/logger"
)

// RecoveryMiddleware turns a handler panic into a 500. The panic value is
// logged, never sent to the client.
func RecoveryMiddleware(lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.FromOr(r.Context(), lg).Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(errs.Response{
						Error: errs.NewInternalError("internal server error", nil),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
