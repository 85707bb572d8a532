package model

// WatchlistEntry is one submitted tuple of a replace-all save.
// The JSON shape matches the body of POST /saveWatchList.
type WatchlistEntry struct {
	MovieID  int64 `json:"id"`
	Watched  bool  `json:"watched"`
	Favorite bool  `json:"favorite"`
}

// WatchlistItem is a stored entry joined with its movie, as returned by
// GET /api/getWatchList. The movie fields are flattened into the same object.
type WatchlistItem struct {
	Movie
	Watched  bool `json:"watched"`
	Favorite bool `json:"favorite"`
}

// Entry returns the save tuple for this item.
func (i WatchlistItem) Entry() WatchlistEntry {
	return WatchlistEntry{MovieID: i.ID, Watched: i.Watched, Favorite: i.Favorite}
}

// Watchlist is a user's list together with the version it was read at.
type Watchlist struct {
	Items   []WatchlistItem
	Version int64
}

// SaveResult is what a successful replace-all save reports back.
type SaveResult struct {
	FavoriteGenres string `json:"favoriteGenres"`
	Version        int64  `json:"version"`
}
