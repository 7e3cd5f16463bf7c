package grantkit

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Middleware provides HTTP middleware for permission and authority checks.
type Middleware struct {
	service        *Service
	getPrincipalID func(*http.Request) string
	errorHandler   func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := grantkit.NewMiddleware(service,
//	    grantkit.WithPrincipalIDExtractor(grantkit.PrincipalFromHeader("X-Principal-ID")),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:        service,
		getPrincipalID: defaultGetPrincipalID,
		errorHandler:   defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithPrincipalIDExtractor sets a custom function to extract the principal from a request.
func WithPrincipalIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getPrincipalID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

// PrincipalFromHeader reads the principal ID from a trusted header set by
// an upstream authenticating proxy.
func PrincipalFromHeader(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

func defaultGetPrincipalID(r *http.Request) string {
	return GetPrincipalID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsUnauthenticated(err):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case IsForbidden(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case IsNotFound(err):
		http.Error(w, "Not Found", http.StatusNotFound)
	case IsValidation(err):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	case IsStorageUnavailable(err):
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// TargetExtractor extracts the principal an operation acts upon.
type TargetExtractor func(*http.Request) (string, error)

// TargetFromParam reads the target principal from a route parameter.
// Works with chi and with standard library patterns.
//
// Example:
//
//	// For route /principals/{id}/assignments
//	r.With(mw.RequireManage(grantkit.TargetFromParam("id"))).Get(...)
func TargetFromParam(name string) TargetExtractor {
	return func(r *http.Request) (string, error) {
		id := chi.URLParam(r, name)
		if id == "" {
			id = r.PathValue(name)
		}
		if id == "" {
			return "", NewError(ErrInvalidRequest, "principal ID not found in request path")
		}
		return id, nil
	}
}

// TargetFromQuery reads the target principal from a query parameter.
func TargetFromQuery(name string) TargetExtractor {
	return func(r *http.Request) (string, error) {
		id := r.URL.Query().Get(name)
		if id == "" {
			return "", NewError(ErrInvalidRequest, "principal ID not found in query")
		}
		return id, nil
	}
}

// RequirePermission creates middleware that requires a specific permission.
// The evaluated Checker is stored in the request context.
//
// Example:
//
//	r.With(mw.RequirePermission("roles.manage")).Post("/roles", createRoleHandler)
func (m *Middleware) RequirePermission(permission PermissionTag) func(http.Handler) http.Handler {
	return m.RequireAnyPermission(permission)
}

// RequireAnyPermission creates middleware that requires any of the specified permissions.
func (m *Middleware) RequireAnyPermission(permissions ...PermissionTag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				m.errorHandler(w, r, ErrNoPrincipalID)
				return
			}

			checker, err := m.service.GetChecker(ctx, principalID)
			if err != nil {
				if IsNotFound(err) {
					err = NewError(ErrForbidden, "unknown principal").WithPrincipal(principalID)
				}
				m.errorHandler(w, r, err)
				return
			}
			if !checker.HasAnyPermission(permissions...) {
				m.errorHandler(w, r, NewError(ErrForbidden, "missing required permission").
					WithPrincipal(principalID))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithChecker(ctx, checker)))
		})
	}
}

// RequireManage creates middleware that requires the caller to sit strictly
// above the target principal in the role hierarchy.
//
// Example:
//
//	r.With(mw.RequireManage(grantkit.TargetFromParam("id"))).
//	    Get("/principals/{id}/permissions", permissionsHandler)
func (m *Middleware) RequireManage(extractor TargetExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				m.errorHandler(w, r, ErrNoPrincipalID)
				return
			}
			target, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			ok, err := m.service.CheckCanManage(ctx, principalID, target)
			if err != nil && !IsNotFound(err) {
				m.errorHandler(w, r, err)
				return
			}
			if !ok {
				m.errorHandler(w, r, NewError(ErrForbidden, "target is not below the caller's authority").
					WithPrincipal(target).
					WithActor(principalID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoadChecker creates middleware that loads the caller's Checker into context.
// Use this when you want to do checks in the handler rather than middleware.
//
// Example:
//
//	r.With(mw.LoadChecker()).Get("/me", meHandler)
//
//	func meHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := grantkit.GetChecker(r.Context())
//	    if checker != nil && checker.HasPermission("grades.write") {
//	        // show grading tools
//	    }
//	}
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				next.ServeHTTP(w, r)
				return
			}
			checker, err := m.service.GetChecker(r.Context(), principalID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithChecker(r.Context(), checker)))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context for mutations made by handlers.
//
// Example:
//
//	r.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ctx = WithIPAddress(ctx, clientIP(r))
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Request ID is commonly set by an upstream proxy or router middleware
			if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			if principalID := m.getPrincipalID(r); principalID != "" {
				ctx = WithActorID(ctx, principalID)
				ctx = WithPrincipalID(ctx, principalID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
