package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/permission"
)

type invitationResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id,omitempty"`
	Email          string    `json:"email"`
	Request        bool      `json:"request"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func newInvitationResponse(inv *models.Invitation) invitationResponse {
	out := invitationResponse{
		ID:             inv.InvitationID.String(),
		OrganizationID: inv.OrgID.String(),
		Email:          inv.Email,
		Request:        inv.Request,
		Status:         string(inv.Status),
		CreatedAt:      inv.CreatedAt,
	}
	if inv.UserID != nil {
		out.UserID = inv.UserID.String()
	}
	return out
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	invitations, err := h.services.Invitations.List(r.Context(), auth.SubjectFromContext(r.Context()), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]invitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		out = append(out, newInvitationResponse(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

type createInvitationRequest struct {
	Email string `json:"email"`
}

func (h *Handler) createInvitation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	inv, err := h.services.Invitations.Invite(r.Context(), auth.SubjectFromContext(r.Context()), orgID, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInvitationResponse(inv))
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}

	inv, err := h.services.Invitations.Request(r.Context(), auth.SubjectFromContext(r.Context()), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInvitationResponse(inv))
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	h.joinTransition(w, r, h.services.Invitations.Accept)
}

func (h *Handler) approveInvitation(w http.ResponseWriter, r *http.Request) {
	h.joinTransition(w, r, h.services.Invitations.Approve)
}

func (h *Handler) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	h.closeTransition(w, r, h.services.Invitations.Reject)
}

func (h *Handler) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	h.closeTransition(w, r, h.services.Invitations.Revoke)
}

type joinFunc func(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) (*models.Membership, error)

// joinTransition runs a transition that produces a membership.
func (h *Handler) joinTransition(w http.ResponseWriter, r *http.Request, fn joinFunc) {
	invitationID, ok := pathID(w, r, "invitationID")
	if !ok {
		return
	}

	m, err := fn(r.Context(), auth.SubjectFromContext(r.Context()), invitationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMembershipResponse(m))
}

type closeFunc func(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) error

// closeTransition runs a transition that ends an invitation without a membership.
func (h *Handler) closeTransition(w http.ResponseWriter, r *http.Request, fn closeFunc) {
	invitationID, ok := pathID(w, r, "invitationID")
	if !ok {
		return
	}

	if err := fn(r.Context(), auth.SubjectFromContext(r.Context()), invitationID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
