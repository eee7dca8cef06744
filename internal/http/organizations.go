package http

import (
	"net/http"
	"time"

	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/organization"
)

type organizationResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Private    bool      `json:"private"`
	Individual bool      `json:"individual"`
	Plan       string    `json:"plan"`
	MaxUsers   int       `json:"max_users"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newOrganizationResponse(org *models.Organization) organizationResponse {
	return organizationResponse{
		ID:         org.OrgID.String(),
		Name:       org.Name,
		Slug:       org.Slug,
		Private:    org.Private,
		Individual: org.Individual,
		Plan:       org.Plan,
		MaxUsers:   org.MaxUsers,
		CreatedAt:  org.CreatedAt,
		UpdatedAt:  org.UpdatedAt,
	}
}

type membershipResponse struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Admin          bool      `json:"admin"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMembershipResponse(m *models.Membership) membershipResponse {
	return membershipResponse{
		OrganizationID: m.OrgID.String(),
		UserID:         m.UserID.String(),
		Admin:          m.Admin,
		CreatedAt:      m.CreatedAt,
	}
}

// Plan and quota are operator controlled and rejected as unknown fields.
type createOrganizationRequest struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Private bool   `json:"private"`
}

func (h *Handler) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	org, err := h.services.Organizations.Create(r.Context(), auth.SubjectFromContext(r.Context()), organization.CreateParams{
		Name:    req.Name,
		Slug:    req.Slug,
		Private: req.Private,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrganizationResponse(org))
}

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	org, err := h.services.Organizations.Get(r.Context(), auth.SubjectFromContext(r.Context()), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrganizationResponse(org))
}

type updateOrganizationRequest struct {
	Name    *string `json:"name"`
	Private *bool   `json:"private"`
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	var req updateOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	org, err := h.services.Organizations.Update(r.Context(), auth.SubjectFromContext(r.Context()), orgID, organization.UpdateParams{
		Name:    req.Name,
		Private: req.Private,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrganizationResponse(org))
}

func (h *Handler) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	if err := h.services.Organizations.Delete(r.Context(), auth.SubjectFromContext(r.Context()), orgID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMemberships(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	members, err := h.services.Organizations.ListMembers(r.Context(), auth.SubjectFromContext(r.Context()), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]membershipResponse, 0, len(members))
	for _, m := range members {
		out = append(out, newMembershipResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"memberships": out})
}

type updateMembershipRequest struct {
	Admin *bool `json:"admin"`
}

func (h *Handler) updateMembership(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req updateMembershipRequest
	if err := decodeJSON(r, &req); err != nil || req.Admin == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	m, err := h.services.Organizations.SetAdmin(r.Context(), auth.SubjectFromContext(r.Context()), orgID, userID, *req.Admin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMembershipResponse(m))
}

func (h *Handler) deleteMembership(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := h.services.Organizations.RemoveMember(r.Context(), auth.SubjectFromContext(r.Context()), orgID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
