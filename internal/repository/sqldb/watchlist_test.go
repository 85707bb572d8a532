package sqldb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

// joinAll is a stand-in for the real genre derivation: it exposes exactly
// which genre strings the transaction handed over, and in what order.
func joinAll(genres []string) string {
	return strings.Join(genres, "|")
}

func saveOrFail(t *testing.T, db *DB, username string, entries []model.WatchlistEntry) *model.SaveResult {
	t.Helper()
	res, err := db.ReplaceWatchlist(context.Background(), username, entries, nil, joinAll)
	if err != nil {
		t.Fatalf("ReplaceWatchlist() error = %v", err)
	}
	return res
}

// =========================================================================
// REPLACE TESTS
// =========================================================================

func TestReplaceWatchlist_StoresEntriesInOrder(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)
	createTestUser(t, db, "alice")

	entries := []model.WatchlistEntry{
		{MovieID: 3, Watched: true},
		{MovieID: 1, Favorite: true},
		{MovieID: 2},
	}
	res := saveOrFail(t, db, "alice", entries)

	if res.FavoriteGenres != "Horror, Sci-Fi|Action,Drama|Drama" {
		t.Errorf("derive received %q, want genres in submission order", res.FavoriteGenres)
	}
	if res.Version != 1 {
		t.Errorf("Version = %d, want 1", res.Version)
	}

	wl, err := db.GetWatchlist(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetWatchlist() error = %v", err)
	}
	if len(wl.Items) != 3 {
		t.Fatalf("len = %d, want 3", len(wl.Items))
	}
	for i, want := range []int64{3, 1, 2} {
		if wl.Items[i].ID != want {
			t.Errorf("Items[%d].ID = %d, want %d", i, wl.Items[i].ID, want)
		}
	}
	if !wl.Items[0].Watched || wl.Items[0].Favorite {
		t.Errorf("Items[0] flags = %+v, want watched only", wl.Items[0])
	}
	if !wl.Items[1].Favorite {
		t.Error("Items[1] should be favorite")
	}
	if wl.Items[0].Title != "Alien" {
		t.Errorf("movie fields not joined: %+v", wl.Items[0].Movie)
	}
	if wl.Version != 1 {
		t.Errorf("Watchlist.Version = %d, want 1", wl.Version)
	}

	u, _ := db.GetUserByUsername(context.Background(), "alice")
	if u.FavoriteGenres != res.FavoriteGenres {
		t.Errorf("stored favorite_genres = %q, want %q", u.FavoriteGenres, res.FavoriteGenres)
	}
}

func TestReplaceWatchlist_ReplacesPreviousSet(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)
	createTestUser(t, db, "alice")

	saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 1}, {MovieID: 2}, {MovieID: 3}})
	res := saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 4}})

	wl, _ := db.GetWatchlist(context.Background(), "alice")
	if len(wl.Items) != 1 || wl.Items[0].ID != 4 {
		t.Errorf("watchlist = %+v, want only movie 4", wl.Items)
	}
	if res.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Version)
	}
}

func TestReplaceWatchlist_EmptyListClears(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)
	alice := createTestUser(t, db, "alice")

	saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 1}})

	res, err := db.ReplaceWatchlist(context.Background(), "alice", nil, nil, func(g []string) string {
		if len(g) != 0 {
			t.Errorf("derive got %v for an empty save", g)
		}
		return ""
	})
	if err != nil {
		t.Fatalf("ReplaceWatchlist(empty) error = %v", err)
	}
	if res.FavoriteGenres != "" {
		t.Errorf("FavoriteGenres = %q, want empty", res.FavoriteGenres)
	}

	n, err := db.CountEntries(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("CountEntries() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountEntries() = %d, want 0", n)
	}
}

func TestReplaceWatchlist_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)

	_, err := db.ReplaceWatchlist(context.Background(), "ghost", []model.WatchlistEntry{{MovieID: 1}}, nil, joinAll)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// ROLLBACK TESTS:
// Each failure happens after the transaction has started. The previous
// watchlist, favorite_genres and version must all survive untouched.

func TestReplaceWatchlist_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.WatchlistEntry
		wantErr error
	}{
		{
			name:    "unknown movie id",
			entries: []model.WatchlistEntry{{MovieID: 2}, {MovieID: 999}},
			wantErr: apperror.ErrNotFound,
		},
		{
			// The duplicate violates the primary key during INSERT, i.e. after
			// the DELETE has already run inside the transaction.
			name:    "duplicate movie id fails mid-insert",
			entries: []model.WatchlistEntry{{MovieID: 2}, {MovieID: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedMovies(t, db)
			createTestUser(t, db, "alice")
			before := saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 1, Watched: true}, {MovieID: 3}})

			_, err := db.ReplaceWatchlist(context.Background(), "alice", tt.entries, nil, joinAll)
			if err == nil {
				t.Fatal("ReplaceWatchlist() should have failed")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}

			wl, err := db.GetWatchlist(context.Background(), "alice")
			if err != nil {
				t.Fatalf("GetWatchlist() error = %v", err)
			}
			if len(wl.Items) != 2 || wl.Items[0].ID != 1 || !wl.Items[0].Watched || wl.Items[1].ID != 3 {
				t.Errorf("watchlist changed after failed save: %+v", wl.Items)
			}
			if wl.Version != before.Version {
				t.Errorf("Version = %d, want %d", wl.Version, before.Version)
			}
			u, _ := db.GetUserByUsername(context.Background(), "alice")
			if u.FavoriteGenres != before.FavoriteGenres {
				t.Errorf("favorite_genres = %q, want %q", u.FavoriteGenres, before.FavoriteGenres)
			}
		})
	}
}

func TestReplaceWatchlist_VersionCheck(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)
	createTestUser(t, db, "alice")
	ctx := context.Background()

	first := saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 1}})

	stale := int64(0)
	_, err := db.ReplaceWatchlist(ctx, "alice", []model.WatchlistEntry{{MovieID: 2}}, &stale, joinAll)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("stale save error = %v, want ErrConflict", err)
	}

	current := first.Version
	res, err := db.ReplaceWatchlist(ctx, "alice", []model.WatchlistEntry{{MovieID: 2}}, &current, joinAll)
	if err != nil {
		t.Fatalf("save at current version error = %v", err)
	}
	if res.Version != first.Version+1 {
		t.Errorf("Version = %d, want %d", res.Version, first.Version+1)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetWatchlist_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetWatchlist(context.Background(), "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetWatchlist_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	wl, err := db.GetWatchlist(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetWatchlist() error = %v", err)
	}
	// nil would encode as JSON null; clients expect [].
	if wl.Items == nil {
		t.Error("Items should be an empty slice, not nil")
	}
}

func TestAllEntries(t *testing.T) {
	db := newTestDB(t)
	seedMovies(t, db)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	saveOrFail(t, db, "alice", []model.WatchlistEntry{{MovieID: 2}, {MovieID: 1}})
	saveOrFail(t, db, "bob", []model.WatchlistEntry{{MovieID: 4}})

	all, err := db.AllEntries(context.Background())
	if err != nil {
		t.Fatalf("AllEntries() error = %v", err)
	}
	if got := all[alice.ID]; len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Errorf("alice entries = %v, want [2 1]", got)
	}
	if got := all[bob.ID]; len(got) != 1 || got[0] != 4 {
		t.Errorf("bob entries = %v, want [4]", got)
	}
}
