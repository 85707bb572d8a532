package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// MovieHandler serves the catalog and per-user recommendations.
type MovieHandler struct {
	movies          *service.MovieService
	recommendations *service.RecommendationService
	logger          *slog.Logger
}

func NewMovieHandler(
	movies *service.MovieService,
	recommendations *service.RecommendationService,
	logger *slog.Logger,
) *MovieHandler {
	return &MovieHandler{movies: movies, recommendations: recommendations, logger: logger}
}

// HandleList returns the full catalog. HTTP: GET /api/movies
func (h *MovieHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	movies, err := h.movies.List(r.Context())
	if err != nil {
		failed(w, h.logger, "list movies", err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

type recommendationsResponse struct {
	RecommendedMovieIDs []int64 `json:"recommended_movie_ids"`
}

// HandleRecommendations returns movie ids picked for the caller.
//
// HTTP: GET /api/recommendations?username=
//
// username defaults to the session user. Asking for someone else's is
// forbidden: the result leaks what similar users have saved.
func (h *MovieHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		username = sessionUser
	}
	if username != sessionUser {
		writeError(w, apperror.Forbidden("You can only see your own recommendations"))
		return
	}

	ids, err := h.recommendations.Recommend(r.Context(), username)
	if err != nil {
		failed(w, h.logger, "recommendations", err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{RecommendedMovieIDs: ids})
}
