package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/events"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// VersionHeader carries the watchlist version on reads and saves. The client
// sends it back as baseVersion to detect a save from another tab.
const VersionHeader = "X-Watchlist-Version"

// WatchlistHandler serves reading and saving watchlists.
type WatchlistHandler struct {
	watchlists *service.WatchlistService
	events     EventPublisher
	logger     *slog.Logger
}

func NewWatchlistHandler(watchlists *service.WatchlistService, publisher EventPublisher, logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{watchlists: watchlists, events: publisher, logger: logger}
}

// HandleGet returns a user's watchlist in saved order.
//
// HTTP: GET /api/getWatchList?username=alice
// RESPONSE: [{"id":1,"title":"Heat",...,"watched":true,"favorite":false}, ...]
func (h *WatchlistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	viewer, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	username, err := requiredQuery(r, "username")
	if err != nil {
		writeError(w, err)
		return
	}

	wl, err := h.watchlists.Get(r.Context(), viewer, username)
	if err != nil {
		failed(w, h.logger, "get watchlist", err)
		return
	}

	w.Header().Set(VersionHeader, strconv.FormatInt(wl.Version, 10))
	writeJSON(w, http.StatusOK, wl.Items)
}

type saveWatchlistRequest struct {
	Username    string                 `json:"username"`
	MovieTitles []model.WatchlistEntry `json:"movieTitles"`
	BaseVersion *int64                 `json:"baseVersion,omitempty"`
}

type saveWatchlistResponse struct {
	Message        string `json:"message"`
	FavoriteGenres string `json:"favoriteGenres"`
	Version        int64  `json:"version"`
}

// HandleSave replaces the caller's whole watchlist.
//
// HTTP: POST /saveWatchList
// REQUEST BODY:
//
//	{"username":"alice","movieTitles":[{"id":1,"watched":true,"favorite":false}],"baseVersion":3}
//
// An empty movieTitles array clears the list. A missing one is rejected, so
// a truncated body can never wipe a watchlist.
func (h *WatchlistHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req saveWatchlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.MovieTitles == nil {
		writeError(w, apperror.ValidationFailed("movieTitles", "Invalid request: Missing username or movies."))
		return
	}

	res, err := h.watchlists.Save(r.Context(), sessionUser, req.Username, req.MovieTitles, req.BaseVersion)
	if err != nil {
		failed(w, h.logger, "save watchlist", err)
		return
	}

	publish(h.events, r, events.TypeWatchlistSaved, req.Username)

	w.Header().Set(VersionHeader, strconv.FormatInt(res.Version, 10))
	writeJSON(w, http.StatusOK, saveWatchlistResponse{
		Message:        "Watchlist updated successfully",
		FavoriteGenres: res.FavoriteGenres,
		Version:        res.Version,
	})
}
