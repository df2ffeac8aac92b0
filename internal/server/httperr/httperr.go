// Package httperr maps service errors to HTTP responses with a single JSON envelope:
//
//	{"error": {"code": "...", "message": "...", "details": {...}}}
package httperr

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	invitationdomain "github.com/yonathanth/Workline-backend/internal/invitation/domain"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	orgdomain "github.com/yonathanth/Workline-backend/internal/organization/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
)

// maxBodyBytes caps request bodies read by Decode.
const maxBodyBytes = 1 << 20

// Error is an HTTP-visible error.
type Error struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// BadRequest returns a 400 invalid_request error.
func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: msg}
}

// validationErrors are reported as 400 invalid_request with the sentinel's message.
var validationErrors = []error{
	membershipdomain.ErrInvalidRole,
	membershipdomain.ErrInvalidTransfer,
	orgdomain.ErrInvalidName,
	orgdomain.ErrInvalidSlug,
	orgdomain.ErrEmptyPatch,
	invitationdomain.ErrInvalidEmail,
}

type envelope struct {
	Error *Error `json:"error"`
}

// From maps err onto an *Error. Unknown errors become a generic 500.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var ownerErr *membershipdomain.OwnerRemovalError
	if errors.As(err, &ownerErr) {
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    "owner_removal_rejected",
			Message: "the organization owner cannot be removed or demoted; transfer ownership first",
			Details: map[string]any{"ownerId": ownerErr.OwnerID, "action": ownerErr.Action},
		}
	}
	var conflict *membershipdomain.TransferConflictError
	if errors.As(err, &conflict) {
		return &Error{
			Status:  http.StatusConflict,
			Code:    "concurrent_transfer_conflict",
			Message: "ownership changed while the transfer was in progress",
			Details: map[string]any{
				"expectedOwnerId": conflict.ExpectedOwnerID,
				"currentOwnerId":  conflict.CurrentOwnerID,
			},
		}
	}

	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return BadRequest(v.Error())
		}
	}

	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		return &Error{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "authentication required"}
	case errors.Is(err, rbac.ErrNotAMember):
		return &Error{Status: http.StatusForbidden, Code: "not_a_member", Message: "you are not a member of this organization"}
	case errors.Is(err, rbac.ErrInsufficientRole):
		return &Error{Status: http.StatusForbidden, Code: "insufficient_role", Message: err.Error()}
	case errors.Is(err, rbac.ErrBackendUnavailable):
		return &Error{Status: http.StatusServiceUnavailable, Code: "backend_unavailable", Message: "authorization backend unavailable"}

	case errors.Is(err, membershipdomain.ErrMemberNotFound):
		return &Error{Status: http.StatusNotFound, Code: "member_not_found", Message: "member not found"}
	case errors.Is(err, membershipdomain.ErrOrganizationNotFound), errors.Is(err, orgdomain.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "organization_not_found", Message: "organization not found"}
	case errors.Is(err, membershipdomain.ErrOwnerPromotionRejected):
		return &Error{Status: http.StatusBadRequest, Code: "owner_promotion_rejected", Message: "use transfer-ownership to assign the owner role"}
	case errors.Is(err, membershipdomain.ErrDuplicateMembership):
		return &Error{Status: http.StatusConflict, Code: "already_member", Message: "user is already a member of this organization"}
	case errors.Is(err, sessiondomain.ErrMembershipChanged):
		return &Error{Status: http.StatusConflict, Code: "membership_changed", Message: "membership changed while switching organization; retry"}
	case errors.Is(err, orgdomain.ErrSlugTaken):
		return &Error{Status: http.StatusConflict, Code: "slug_taken", Message: "organization slug already in use"}

	case errors.Is(err, invitationdomain.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "invitation_not_found", Message: "invitation not found"}
	case errors.Is(err, invitationdomain.ErrExpired):
		return &Error{Status: http.StatusGone, Code: "invitation_expired", Message: "invitation has expired"}
	case errors.Is(err, invitationdomain.ErrAlreadyAccepted):
		return &Error{Status: http.StatusConflict, Code: "invitation_accepted", Message: "invitation has already been accepted"}
	case errors.Is(err, invitationdomain.ErrAlreadyInvited):
		return &Error{Status: http.StatusConflict, Code: "already_invited", Message: "a pending invitation already exists for this email"}
	case errors.Is(err, invitationdomain.ErrEmailMismatch):
		return &Error{Status: http.StatusForbidden, Code: "invitation_email_mismatch", Message: "invitation is addressed to a different email"}
	}
	return &Error{Status: http.StatusInternalServerError, Code: "internal", Message: "internal server error"}
}

// Write sends err as a JSON error envelope. Server-side failures are logged at error with
// the full cause; the client only sees the generic message.
func Write(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e := From(err)
	if e.Status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", e.Status),
			slog.Any("error", err),
		)
	}
	WriteJSON(w, e.Status, envelope{Error: e})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON request body into v. Unknown fields and trailing data are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("request body is required")
		}
		return BadRequest("invalid JSON payload")
	}
	if dec.More() {
		return BadRequest("invalid JSON payload")
	}
	return nil
}
