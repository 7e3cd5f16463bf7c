// Package httpapi exposes the grantkit service over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/fernandezvara/grantkit"
)

// PrincipalHeader carries the authenticated principal, set by the upstream
// identity proxy.
const PrincipalHeader = "X-Principal-ID"

// Permissions checked by the HTTP surface.
const (
	PermRolesView   grantkit.PermissionTag = "roles.view"
	PermRolesManage grantkit.PermissionTag = "roles.manage"
	PermRolesAssign grantkit.PermissionTag = "roles.assign"
	PermAuditRead   grantkit.PermissionTag = "audit.read"
)

// Handler serves the role and assignment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *grantkit.Service
	validate *validator.Validate
	mw       *grantkit.Middleware
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, service *grantkit.Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mw := grantkit.NewMiddleware(service,
		grantkit.WithPrincipalIDExtractor(grantkit.PrincipalFromHeader(PrincipalHeader)),
		grantkit.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			RespondError(w, err)
		}),
	)
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mw:       mw,
	}
}

// NewRouter builds the full router with the standard middleware stack.
func NewRouter(h *Handler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	r.Use(h.mw.InjectAuditContext())
	h.MountRoutes(r)
	return r
}

// MountRoutes registers every endpoint on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/healthz", h.healthz)

	r.Route("/roles", func(r chi.Router) {
		r.With(h.mw.RequirePermission(PermRolesView)).Get("/", h.listRoles)
		r.With(h.mw.RequirePermission(PermRolesManage)).Post("/", h.createRole)
		r.With(h.mw.RequirePermission(PermRolesView)).Get("/statistics", h.roleStatistics)
		r.Route("/{id}", func(r chi.Router) {
			r.With(h.mw.RequirePermission(PermRolesView)).Get("/", h.getRole)
			r.With(h.mw.RequirePermission(PermRolesManage)).Patch("/", h.updateRole)
			r.With(h.mw.RequirePermission(PermRolesManage)).Delete("/", h.deleteRole)
			r.With(h.mw.RequirePermission(PermRolesView)).Get("/deletion-check", h.deletionCheck)
			r.With(h.mw.RequirePermission(PermRolesView)).Get("/subordinates", h.subordinateRoles)
			r.With(h.mw.RequirePermission(PermRolesView)).Get("/assignments", h.roleAssignments)
		})
	})

	r.Route("/assignments", func(r chi.Router) {
		r.Use(h.mw.RequirePermission(PermRolesAssign))
		r.Post("/", h.assignRole)
		r.Get("/{id}", h.getAssignment)
		r.Post("/{id}/revoke", h.revokeAssignment)
	})

	r.Route("/principals/{id}", func(r chi.Router) {
		r.Use(h.selfOrPermission(PermRolesView))
		r.Get("/assignments", h.principalAssignments)
		r.Get("/effective-roles", h.effectiveRoles)
		r.Get("/primary-role", h.primaryRole)
		r.Get("/highest-role", h.highestRole)
		r.Get("/permissions", h.permissions)
		r.Get("/manageable-roles", h.manageableRoles)
		r.Get("/can-manage/{other}", h.canManage)
	})

	r.With(h.mw.RequirePermission(PermAuditRead)).Get("/audit", h.auditLog)
}

// selfOrPermission lets principals read their own grants; reading anyone
// else's requires permission.
func (h *Handler) selfOrPermission(permission grantkit.PermissionTag) func(http.Handler) http.Handler {
	guarded := h.mw.RequirePermission(permission)
	return func(next http.Handler) http.Handler {
		checked := guarded(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := grantkit.GetPrincipalID(r.Context())
			if caller == "" {
				RespondError(w, grantkit.ErrNoPrincipalID)
				return
			}
			if caller == chi.URLParam(r, "id") {
				next.ServeHTTP(w, r)
				return
			}
			checked.ServeHTTP(w, r)
		})
	}
}

// callerID returns the authenticated principal or writes a 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := grantkit.GetPrincipalID(r.Context())
	if id == "" {
		RespondError(w, grantkit.ErrNoPrincipalID)
		return "", false
	}
	return id, true
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context())
	if !status.Healthy {
		h.logger.Warn("health check failed", slog.String("error", status.Error))
		JSON(w, http.StatusServiceUnavailable, status)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"transactions": h.service.GetTransactionMetrics(),
	})
}
