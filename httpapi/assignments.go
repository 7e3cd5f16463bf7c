package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fernandezvara/grantkit"
)

type revokeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req grantkit.AssignRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if err := h.service.AuthorizeGrantChange(r.Context(), actorID, req.PrincipalID, req.RoleID); err != nil {
		RespondError(w, err)
		return
	}
	assignment, err := h.service.AssignRole(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("role assigned",
		slog.String("assignment_id", assignment.ID),
		slog.String("principal_id", assignment.PrincipalID),
		slog.String("role_id", assignment.RoleID),
		slog.String("actor_id", actorID))
	JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) getAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.service.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, assignment)
}

func (h *Handler) revokeAssignment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			RespondError(w, err)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		RespondError(w, grantkit.NewError(grantkit.ErrInvalidRequest, "invalid revocation").WithCause(err))
		return
	}

	id := chi.URLParam(r, "id")
	current, err := h.service.GetAssignment(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.service.AuthorizeGrantChange(r.Context(), actorID, current.PrincipalID, current.RoleID); err != nil {
		RespondError(w, err)
		return
	}
	result, err := h.service.RevokeRole(r.Context(), id, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	if !result.AlreadyRevoked && result.State == grantkit.StateRevoked {
		h.logger.Info("role revoked",
			slog.String("assignment_id", id),
			slog.String("actor_id", actorID))
	}
	JSON(w, http.StatusOK, result)
}
