package openapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/transport"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// Validator checks JSON request bodies and parameters against the OpenAPI
// document. Routes the document does not describe pass through untouched.
type Validator struct {
	*transport.BaseHandler
	router routers.Router
	prefix string
}

// NewValidator loads spec and matches request paths after stripping prefix
// (the mount point the document's server URL stands for).
func NewValidator(ctx context.Context, spec []byte, prefix string, lg *slog.Logger) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	// paths are matched relative to the mount point
	doc.Servers = nil
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	return &Validator{
		BaseHandler: transport.NewBaseHandler(lg),
		router:      router,
		prefix:      strings.TrimSuffix(prefix, "/"),
	}, nil
}

func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isJSON(r) {
			next.ServeHTTP(w, r)
			return
		}

		probe := r.Clone(r.Context())
		probe.URL.Path = strings.TrimPrefix(r.URL.Path, v.prefix)
		probe.Body = r.Body

		route, pathParams, err := v.router.FindRoute(probe)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    probe,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.Logger.Warn("request rejected by schema", "method", r.Method, "path", r.URL.Path, "error", err)
			v.HandleServiceError(w, errs.NewValidationError(describe(err), errs.ErrCodeValidationFailed))
			return
		}

		// the validator consumed the body and left a fresh reader on probe
		r.Body = probe.Body
		next.ServeHTTP(w, r)
	})
}

func isJSON(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func describe(err error) string {
	var multi openapi3.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		err = multi[0]
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %s: %s", reqErr.Parameter.Name, reason(reqErr))
		}
		return "invalid request body: " + reason(reqErr)
	}
	return "request does not match the API schema"
}

func reason(reqErr *openapi3filter.RequestError) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			return schemaErr.Reason
		}
		return field + ": " + schemaErr.Reason
	}
	if reqErr.Reason != "" {
		return reqErr.Reason
	}
	if reqErr.Err != nil {
		return reqErr.Err.Error()
	}
	return "invalid value"
}
