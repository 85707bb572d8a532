package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

func newTestWatchlistService(t *testing.T) (*WatchlistService, *fakeStore, *cache.ReadThrough) {
	t.Helper()
	store := newFakeStore()
	store.seedMovies()
	rt := newTestCache()
	return NewWatchlistService(store, store, store, rt, discardLogger()), store, rt
}

// =========================================================================
// Save TESTS
// =========================================================================

func TestSave_ReplacesAndDerivesGenres(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	res, err := svc.Save(ctx, "alice", "alice", entriesFor(3, 5), nil)
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if res.FavoriteGenres != "Horror, Sci-Fi" {
		t.Errorf("FavoriteGenres = %q, want %q", res.FavoriteGenres, "Horror, Sci-Fi")
	}

	res, err = svc.Save(ctx, "alice", "alice", entriesFor(1, 2), nil)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if res.FavoriteGenres != "Drama, Action" {
		t.Errorf("FavoriteGenres = %q, want %q", res.FavoriteGenres, "Drama, Action")
	}
	if res.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Version)
	}

	wl, err := svc.Get(ctx, "alice", "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(wl.Items) != 2 || wl.Items[0].ID != 1 || wl.Items[1].ID != 2 {
		t.Errorf("Get() items = %+v, want movies 1 and 2 in order", wl.Items)
	}
}

func TestSave_EmptyListClears(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	svc.Save(ctx, "alice", "alice", entriesFor(1, 2), nil)
	res, err := svc.Save(ctx, "alice", "alice", nil, nil)
	if err != nil {
		t.Fatalf("Save(empty) error = %v", err)
	}
	if res.FavoriteGenres != "" {
		t.Errorf("FavoriteGenres = %q, want empty", res.FavoriteGenres)
	}
	wl, _ := svc.Get(ctx, "alice", "alice")
	if len(wl.Items) != 0 {
		t.Errorf("Get() after clear = %d items, want 0", len(wl.Items))
	}
}

func TestSave_DuplicatesCollapse(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	in := []model.WatchlistEntry{
		{MovieID: 1},
		{MovieID: 2},
		{MovieID: 1, Watched: true},
	}
	res, err := svc.Save(ctx, "alice", "alice", in, nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Genres are counted over the distinct set {1, 2}.
	if res.FavoriteGenres != "Drama, Action" {
		t.Errorf("FavoriteGenres = %q, want %q", res.FavoriteGenres, "Drama, Action")
	}

	wl, _ := svc.Get(ctx, "alice", "alice")
	if len(wl.Items) != 2 {
		t.Fatalf("stored %d rows, want 2", len(wl.Items))
	}
	if wl.Items[0].ID != 1 || !wl.Items[0].Watched {
		t.Errorf("first item = %+v, want movie 1 watched (last flags win, first position kept)", wl.Items[0])
	}
}

func TestSave_Errors(t *testing.T) {
	tests := []struct {
		name    string
		session string
		user    string
		entries []model.WatchlistEntry
		want    error
	}{
		{"other user's list", "bob", "alice", entriesFor(1), apperror.ErrForbidden},
		{"missing username", "alice", " ", entriesFor(1), apperror.ErrValidation},
		{"non-positive id", "alice", "alice", entriesFor(0), apperror.ErrValidation},
		{"unknown movie", "alice", "alice", entriesFor(1, 999), apperror.ErrNotFound},
		{"unknown user", "ghost", "ghost", entriesFor(1), apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestWatchlistService(t)
			store.addUser(t, "alice", model.PrivacyPrivate)

			_, err := svc.Save(context.Background(), tt.session, tt.user, tt.entries, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Save() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSave_FailureLeavesPreviousState(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "alice", "alice", entriesFor(3, 5), nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store.saveErr = errors.New("disk full")
	if _, err := svc.Save(ctx, "alice", "alice", entriesFor(1, 2), nil); err == nil {
		t.Fatal("Save() should fail when the store fails")
	}
	store.saveErr = nil

	u, _ := store.GetUserByUsername(ctx, "alice")
	if u.FavoriteGenres != "Horror, Sci-Fi" {
		t.Errorf("FavoriteGenres = %q after failed save, want unchanged", u.FavoriteGenres)
	}
	wl, _ := svc.Get(ctx, "alice", "alice")
	if len(wl.Items) != 2 || wl.Items[0].ID != 3 {
		t.Errorf("watchlist changed after failed save: %+v", wl.Items)
	}
}

func TestSave_BaseVersion(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	v0 := int64(0)
	if _, err := svc.Save(ctx, "alice", "alice", entriesFor(1), &v0); err != nil {
		t.Fatalf("Save(base 0) error = %v", err)
	}
	// Another tab still thinks the list is at version 0.
	_, err := svc.Save(ctx, "alice", "alice", entriesFor(2), &v0)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("stale Save() error = %v, want ErrConflict", err)
	}
	// Without a base version the save is last-write-wins.
	if _, err := svc.Save(ctx, "alice", "alice", entriesFor(2), nil); err != nil {
		t.Fatalf("Save(no base) error = %v", err)
	}
}

func TestSave_EvictsCachedReads(t *testing.T) {
	svc, store, rt := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	svc.Get(ctx, "alice", "alice")
	svc.Get(ctx, "alice", "alice")
	if store.watchlistReads != 1 {
		t.Fatalf("watchlistReads = %d, want 1 (second Get should hit the cache)", store.watchlistReads)
	}

	// Prime the aggregate and recommendation keys.
	cache.GetOrLoad(ctx, rt, cache.AllUsersKey(), func(context.Context) (string, error) { return "stale", nil })
	cache.GetOrLoad(ctx, rt, cache.RecommendationsKey("bob"), func(context.Context) (string, error) { return "stale", nil })

	if _, err := svc.Save(ctx, "alice", "alice", entriesFor(1), nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	wl, _ := svc.Get(ctx, "alice", "alice")
	if store.watchlistReads != 2 || len(wl.Items) != 1 {
		t.Errorf("Get() after save served stale data (reads=%d items=%d)", store.watchlistReads, len(wl.Items))
	}
	for _, key := range []string{cache.AllUsersKey(), cache.RecommendationsKey("bob")} {
		got, _ := cache.GetOrLoad(ctx, rt, key, func(context.Context) (string, error) { return "fresh", nil })
		if got != "fresh" {
			t.Errorf("%s was not evicted by the save", key)
		}
	}
}

// =========================================================================
// Get (privacy) TESTS
// =========================================================================

func TestGet_Privacy(t *testing.T) {
	tests := []struct {
		name    string
		privacy model.Privacy
		friends bool
		wantErr error
	}{
		{"public, stranger", model.PrivacyPublic, false, nil},
		{"friendsonly, friend", model.PrivacyFriendsOnly, true, nil},
		{"friendsonly, stranger", model.PrivacyFriendsOnly, false, apperror.ErrForbidden},
		{"private, friend", model.PrivacyPrivate, true, apperror.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestWatchlistService(t)
			owner := store.addUser(t, "alice", tt.privacy)
			viewer := store.addUser(t, "bob", model.PrivacyPrivate)
			if tt.friends {
				store.befriend(owner, viewer)
			}

			_, err := svc.Get(context.Background(), "bob", "alice")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Get() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Get() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGet_OwnerAlwaysAllowed(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)

	if _, err := svc.Get(context.Background(), "alice", "alice"); err != nil {
		t.Fatalf("Get() own private list error = %v", err)
	}
}

func TestGet_UnknownUser(t *testing.T) {
	svc, store, _ := newTestWatchlistService(t)
	store.addUser(t, "bob", model.PrivacyPrivate)

	_, err := svc.Get(context.Background(), "bob", "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
