package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fernandezvara/grantkit"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string   `json:"type,omitempty"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeBody(w, data)
}

func writeBody(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	writeBody(w, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a JSON request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return grantkit.NewError(grantkit.ErrInvalidRequest, "malformed JSON body").WithCause(err)
	}
	return nil
}

// statusFor maps grantkit errors to HTTP status codes and problem titles.
func statusFor(err error) (int, string) {
	switch {
	case grantkit.IsUnauthenticated(err):
		return http.StatusUnauthorized, "Unauthorized"
	case grantkit.IsForbidden(err):
		return http.StatusForbidden, "Forbidden"
	case grantkit.IsNotFound(err):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, grantkit.ErrDuplicateAssignment), errors.Is(err, grantkit.ErrDuplicateName):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, grantkit.ErrRoleInUse), errors.Is(err, grantkit.ErrProtectedRole):
		return http.StatusConflict, "Role Cannot Be Changed"
	case errors.Is(err, grantkit.ErrPrincipalInactive), errors.Is(err, grantkit.ErrRoleInactive):
		return http.StatusUnprocessableEntity, "Inactive"
	case grantkit.IsValidation(err):
		return http.StatusBadRequest, "Validation Failed"
	case grantkit.IsStorageUnavailable(err):
		return http.StatusServiceUnavailable, "Storage Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps grantkit errors to RFC7807 responses. Storage and
// unexpected errors are not echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	status, title := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}
