package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/organization"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type errorResponse struct {
	Error string `json:"error"`
	Guard string `json:"guard,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var transition *organization.InvalidTransitionError
	switch {
	case errors.Is(err, permission.ErrPermissionDenied):
		telemetry.GetMetrics().PermissionDeniedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("http.route", routePattern(r))))
		if !auth.SubjectFromContext(ctx).IsAuthenticated() {
			w.Header().Set("WWW-Authenticate", `Token realm="accounts"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})

	case errors.As(err, &transition):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Guard: transition.Guard})

	case errors.Is(err, organization.ErrInvalidArgument):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})

	case errors.Is(err, store.ErrOrganizationNotFound),
		errors.Is(err, store.ErrMembershipNotFound),
		errors.Is(err, store.ErrInvitationNotFound),
		errors.Is(err, store.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})

	case errors.Is(err, store.ErrOrganizationAlreadyExists),
		errors.Is(err, store.ErrMembershipAlreadyExists),
		errors.Is(err, store.ErrInvitationAlreadyExists),
		errors.Is(err, store.ErrUserAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})

	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
