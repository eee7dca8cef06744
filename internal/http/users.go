package http

import (
	"net/http"
	"time"

	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/models"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.UserID.String(),
		Username:  u.Username,
		Name:      u.Name,
		Email:     u.PrimaryEmail(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil || id.User == nil {
		w.Header().Set("WWW-Authenticate", `Token realm="accounts"`)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(id.User))
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.services.Accounts.Update(r.Context(), auth.SubjectFromContext(r.Context()), userID, account.UpdateParams{
		Username: req.Username,
		Name:     req.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
