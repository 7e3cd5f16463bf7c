package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fernandezvara/grantkit"
)

const maxAuditPage = 500

func parseAuditFilter(r *http.Request) (grantkit.AuditLogFilter, error) {
	q := r.URL.Query()
	f := grantkit.NewAuditLogFilter()
	if v := q.Get("actor_id"); v != "" {
		f = f.WithActor(v)
	}
	if v := q.Get("principal_id"); v != "" {
		f = f.WithPrincipal(v)
	}
	if v := q.Get("role_id"); v != "" {
		f = f.WithRole(v)
	}
	if v := q.Get("assignment_id"); v != "" {
		f = f.WithAssignment(v)
	}
	if v := q.Get("department"); v != "" {
		f = f.WithDepartment(v)
	}
	if v := q.Get("action"); v != "" {
		f = f.WithAction(grantkit.AuditAction(v))
	}
	since, err := parseTime(q.Get("since"), "since")
	if err != nil {
		return f, err
	}
	until, err := parseTime(q.Get("until"), "until")
	if err != nil {
		return f, err
	}
	f = f.WithTimeRange(since, until)

	limit, offset := f.Limit, f.Offset
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditPage {
			return f, grantkit.NewError(grantkit.ErrInvalidRequest, "limit must be between 1 and 500")
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, grantkit.NewError(grantkit.ErrInvalidRequest, "offset must be a non-negative integer")
		}
		offset = n
	}
	return f.WithPagination(limit, offset), nil
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	rows, err := h.service.GetAuditLog(r.Context(), filter)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, rows)
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, grantkit.NewError(grantkit.ErrInvalidRequest, name+" must be RFC3339").WithCause(err)
	}
	return t, nil
}
