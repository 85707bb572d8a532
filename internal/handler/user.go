package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// UserHandler serves user listings, profiles and the profile settings.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleList returns every user. HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		failed(w, h.logger, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleListWithWatchlists returns the browsable users.
// HTTP: GET /api/usersWithWatchlists
func (h *UserHandler) HandleListWithWatchlists(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsersWithWatchlists(r.Context())
	if err != nil {
		failed(w, h.logger, "list users with watchlists", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleProfile returns the aggregated profile. HTTP: GET /api/profile/{username}
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		failed(w, h.logger, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type privacyResponse struct {
	Privacy model.Privacy `json:"privacy"`
}

// HandleGetPrivacy: GET /api/watchlistPrivacy?username=
func (h *UserHandler) HandleGetPrivacy(w http.ResponseWriter, r *http.Request) {
	username, err := requiredQuery(r, "username")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.users.GetPrivacy(r.Context(), username)
	if err != nil {
		failed(w, h.logger, "get privacy", err)
		return
	}
	writeJSON(w, http.StatusOK, privacyResponse{Privacy: p})
}

type updatePrivacyRequest struct {
	Username string `json:"username"`
	Privacy  string `json:"privacy"`
}

// HandleUpdatePrivacy: POST /api/updateWatchlistPrivacy {"username", "privacy"}
func (h *UserHandler) HandleUpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updatePrivacyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.UpdatePrivacy(r.Context(), sessionUser, req.Username, req.Privacy); err != nil {
		failed(w, h.logger, "update privacy", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Watchlist privacy updated successfully."})
}

type bioResponse struct {
	Bio string `json:"bio"`
}

// HandleGetBio: GET /api/userProfile?username=
func (h *UserHandler) HandleGetBio(w http.ResponseWriter, r *http.Request) {
	username, err := requiredQuery(r, "username")
	if err != nil {
		writeError(w, err)
		return
	}
	bio, err := h.users.GetBio(r.Context(), username)
	if err != nil {
		failed(w, h.logger, "get bio", err)
		return
	}
	writeJSON(w, http.StatusOK, bioResponse{Bio: bio})
}

type updateBioRequest struct {
	Username    string `json:"username"`
	Description string `json:"description"`
}

type updateBioResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	UpdatedDescription string `json:"updatedDescription"`
}

// HandleUpdateBio: POST /api/updateProfileDescription {"username", "description"}
func (h *UserHandler) HandleUpdateBio(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateBioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	bio, err := h.users.UpdateBio(r.Context(), sessionUser, req.Username, req.Description)
	if err != nil {
		failed(w, h.logger, "update bio", err)
		return
	}
	writeJSON(w, http.StatusOK, updateBioResponse{
		Success:            true,
		Message:            "Profile description updated successfully",
		UpdatedDescription: bio,
	})
}
