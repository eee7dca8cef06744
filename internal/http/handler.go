package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/invitation"
	"github.com/wolfeidau/accounts/internal/logger"
	"github.com/wolfeidau/accounts/internal/organization"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Accounts      *account.Service
	Organizations *organization.Service
	Invitations   *invitation.Service
}

// Handler serves the accounts JSON API.
type Handler struct {
	services     Services
	authenticate func(http.Handler) http.Handler
}

// NewHandler builds the API. authenticate attaches the caller identity to the
// request context; anonymous requests must be passed through.
func NewHandler(services Services, authenticate func(http.Handler) http.Handler) *Handler {
	return &Handler{services: services, authenticate: authenticate}
}

// Routes returns the router with the full middleware chain applied.
func (h *Handler) Routes(log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Requests(log))
	r.Use(ClientIPMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/users/me", h.getCurrentUser)
		r.Patch("/users/{userID}", h.updateUser)

		r.Post("/organizations", h.createOrganization)
		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Get("/", h.getOrganization)
			r.Patch("/", h.updateOrganization)
			r.Delete("/", h.deleteOrganization)

			r.Get("/memberships", h.listMemberships)
			r.Patch("/memberships/{userID}", h.updateMembership)
			r.Delete("/memberships/{userID}", h.deleteMembership)

			r.Get("/invitations", h.listInvitations)
			r.Post("/invitations", h.createInvitation)
			r.Post("/requests", h.createRequest)
		})

		r.Route("/invitations/{invitationID}", func(r chi.Router) {
			r.Post("/accept", h.acceptInvitation)
			r.Post("/approve", h.approveInvitation)
			r.Post("/reject", h.rejectInvitation)
			r.Post("/revoke", h.revokeInvitation)
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

// pathID parses a UUID URL parameter, writing a 404 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return uuid.Nil, false
	}
	return id, true
}
