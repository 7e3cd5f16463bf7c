package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fernandezvara/grantkit"
)

type roleResponse struct {
	PrincipalID string         `json:"principal_id"`
	Role        *grantkit.Role `json:"role"`
}

type effectiveRolesResponse struct {
	PrincipalID string           `json:"principal_id"`
	Roles       []grantkit.Role  `json:"roles"`
	Grants      []grantkit.Grant `json:"grants"`
}

type canManageResponse struct {
	ManagerID string `json:"manager_id"`
	SubjectID string `json:"subject_id"`
	CanManage bool   `json:"can_manage"`
}

func (h *Handler) principalAssignments(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	list, err := h.service.ListAssignmentsForPrincipal(r.Context(), chi.URLParam(r, "id"), includeInactive)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

func (h *Handler) effectiveRoles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	checker, err := h.service.GetChecker(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, effectiveRolesResponse{
		PrincipalID: id,
		Roles:       checker.EffectiveRoles(),
		Grants:      checker.Grants(),
	})
}

func (h *Handler) primaryRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	role, ok, err := h.service.PrimaryRole(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := roleResponse{PrincipalID: id}
	if ok {
		resp.Role = &role
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) highestRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	role, ok, err := h.service.HighestAuthorityRole(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := roleResponse{PrincipalID: id}
	if ok {
		resp.Role = &role
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"principal_id": id,
		"permissions":  perms,
	})
}

func (h *Handler) manageableRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ManageableRoles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, roles)
}

// canManage never reports true on error. Unknown principals answer false;
// storage failures surface as 503 so callers do not mistake them for a
// negative decision.
func (h *Handler) canManage(w http.ResponseWriter, r *http.Request) {
	manager, subject := chi.URLParam(r, "id"), chi.URLParam(r, "other")
	ok, err := h.service.CheckCanManage(r.Context(), manager, subject)
	if err != nil && !grantkit.IsNotFound(err) {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, canManageResponse{
		ManagerID: manager,
		SubjectID: subject,
		CanManage: ok && err == nil,
	})
}
