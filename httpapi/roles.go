package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fernandezvara/grantkit"
)

// roleQuery holds the optional filters of GET /roles.
type roleQuery struct {
	Type       string `validate:"omitempty,oneof=administrative faculty staff student external"`
	Priority   int    `validate:"omitempty,min=1,max=10"`
	Term       string `validate:"max=100"`
	ActiveOnly bool
}

func parseRoleQuery(r *http.Request) (roleQuery, error) {
	q := r.URL.Query()
	out := roleQuery{
		Type: q.Get("type"),
		Term: q.Get("q"),
	}
	if raw := q.Get("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return out, grantkit.NewError(grantkit.ErrInvalidPriority, "priority must be an integer")
		}
		if p == 0 {
			return out, grantkit.NewError(grantkit.ErrInvalidPriority, "priority must be between 1 and 10")
		}
		out.Priority = p
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return out, grantkit.NewError(grantkit.ErrInvalidRequest, "active must be a boolean")
		}
		out.ActiveOnly = active
	}
	return out, nil
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	query, err := parseRoleQuery(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.validate.Struct(query); err != nil {
		if query.Priority != 0 && (query.Priority < grantkit.MinPriority || query.Priority > grantkit.MaxPriority) {
			RespondError(w, grantkit.NewError(grantkit.ErrInvalidPriority, "priority must be between 1 and 10").WithCause(err))
			return
		}
		RespondError(w, grantkit.NewError(grantkit.ErrInvalidRequest, "invalid role query").WithCause(err))
		return
	}

	catalog, err := h.service.Catalog(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	roles := catalog.Search(query.Term, query.ActiveOnly)
	filtered := roles[:0]
	for _, role := range roles {
		if query.Type != "" && role.RoleType != grantkit.RoleType(query.Type) {
			continue
		}
		if query.Priority != 0 && role.Priority != query.Priority {
			continue
		}
		filtered = append(filtered, role)
	}
	JSON(w, http.StatusOK, filtered)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var spec grantkit.RoleSpec
	if err := DecodeJSON(r, &spec); err != nil {
		RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), spec)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("role created",
		slog.String("role_id", role.ID),
		slog.String("actor_id", grantkit.GetActorID(r.Context())))
	JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var update grantkit.RoleUpdate
	if err := DecodeJSON(r, &update); err != nil {
		RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.service.DeleteRole(r.Context(), id)
	if err == nil {
		h.logger.Info("role deleted",
			slog.String("role_id", id),
			slog.String("actor_id", grantkit.GetActorID(r.Context())))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !grantkit.IsConflict(err) {
		RespondError(w, err)
		return
	}
	// Blocked deletions list every reason so the caller can fix them at once.
	report, rerr := h.service.ValidateRoleDeletion(r.Context(), id)
	if rerr != nil {
		RespondError(w, err)
		return
	}
	status, title := statusFor(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	writeBody(w, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: "role cannot be deleted",
		Issues: report.Issues,
	})
}

func (h *Handler) deletionCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ValidateRoleDeletion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}

func (h *Handler) subordinateRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.SubordinateRoles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, roles)
}

func (h *Handler) roleAssignments(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive_principals"))
	list, err := h.service.ListAssignmentsForRole(r.Context(), chi.URLParam(r, "id"), includeInactive)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

func (h *Handler) roleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetRoleStatistics(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
