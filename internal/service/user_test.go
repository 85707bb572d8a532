package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

func newTestUserService(t *testing.T) (*UserService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.seedMovies()
	return NewUserService(store, store, store, newTestCache(), discardLogger()), store
}

// =========================================================================
// LISTING TESTS
// =========================================================================

func TestListUsers_DefaultBio(t *testing.T) {
	svc, store := newTestUserService(t)
	store.addUser(t, "alice", model.PrivacyPublic)
	store.UpdateBio(context.Background(), "alice", "I like heists")
	store.addUser(t, "bob", model.PrivacyPrivate)

	users, err := svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers() returned %d users, want 2", len(users))
	}
	if users[0].Bio != "I like heists" {
		t.Errorf("alice bio = %q", users[0].Bio)
	}
	if users[1].Bio != model.DefaultBio {
		t.Errorf("bob bio = %q, want default", users[1].Bio)
	}
}

func TestListUsersWithWatchlists(t *testing.T) {
	svc, store := newTestUserService(t)
	ctx := context.Background()
	alice := store.addUser(t, "alice", model.PrivacyPublic)
	bob := store.addUser(t, "bob", model.PrivacyPrivate)
	store.addUser(t, "carol", model.PrivacyPublic)
	store.watchlists[alice.ID] = entriesFor(1, 2)
	store.watchlists[bob.ID] = entriesFor(1)

	users, err := svc.ListUsersWithWatchlists(ctx)
	if err != nil {
		t.Fatalf("ListUsersWithWatchlists() error = %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" || users[0].WatchlistCount != 2 {
		t.Errorf("ListUsersWithWatchlists() = %+v, want only alice with 2", users)
	}
}

// =========================================================================
// PRIVACY TESTS
// =========================================================================

func TestUpdatePrivacy(t *testing.T) {
	svc, store := newTestUserService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	if err := svc.UpdatePrivacy(ctx, "alice", "alice", "Public"); err != nil {
		t.Fatalf("UpdatePrivacy() error = %v", err)
	}
	got, err := svc.GetPrivacy(ctx, "alice")
	if err != nil {
		t.Fatalf("GetPrivacy() error = %v", err)
	}
	if got != model.PrivacyPublic {
		t.Errorf("GetPrivacy() = %q after update, want public (cache must be evicted)", got)
	}
}

func TestUpdatePrivacy_Errors(t *testing.T) {
	svc, store := newTestUserService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	if err := svc.UpdatePrivacy(ctx, "alice", "alice", "everyone"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("unsupported value: error = %v, want ErrValidation", err)
	}
	if err := svc.UpdatePrivacy(ctx, "bob", "alice", "public"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("other user: error = %v, want ErrForbidden", err)
	}
	if err := svc.UpdatePrivacy(ctx, "ghost", "ghost", "public"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown user: error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// BIO TESTS
// =========================================================================

func TestUpdateBio(t *testing.T) {
	svc, store := newTestUserService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	if bio, _ := svc.GetBio(ctx, "alice"); bio != model.DefaultBio {
		t.Errorf("GetBio() before update = %q, want default", bio)
	}

	got, err := svc.UpdateBio(ctx, "alice", "alice", "  Sci-fi nerd  ")
	if err != nil {
		t.Fatalf("UpdateBio() error = %v", err)
	}
	if got != "Sci-fi nerd" {
		t.Errorf("UpdateBio() = %q, want trimmed text", got)
	}
	if bio, _ := svc.GetBio(ctx, "alice"); bio != "Sci-fi nerd" {
		t.Errorf("GetBio() after update = %q", bio)
	}
}

func TestUpdateBio_Validation(t *testing.T) {
	svc, store := newTestUserService(t)
	store.addUser(t, "alice", model.PrivacyPrivate)
	ctx := context.Background()

	tests := []struct {
		name string
		bio  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", strings.Repeat("é", MaxBioLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.UpdateBio(ctx, "alice", "alice", tt.bio); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("UpdateBio(%s) error = %v, want ErrValidation", tt.name, err)
			}
		})
	}

	// Exactly the limit counts characters, not bytes.
	if _, err := svc.UpdateBio(ctx, "alice", "alice", strings.Repeat("é", MaxBioLength)); err != nil {
		t.Errorf("UpdateBio(at limit) error = %v", err)
	}
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestProfile(t *testing.T) {
	svc, store := newTestUserService(t)
	alice := store.addUser(t, "alice", model.PrivacyFriendsOnly)
	bob := store.addUser(t, "bob", model.PrivacyPublic)
	store.befriend(alice, bob)
	store.watchlists[alice.ID] = entriesFor(1, 2, 3)

	p, err := svc.Profile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.WatchlistCount != 3 {
		t.Errorf("WatchlistCount = %d, want 3", p.WatchlistCount)
	}
	if len(p.Friends) != 1 || p.Friends[0].Username != "bob" {
		t.Errorf("Friends = %+v, want [bob]", p.Friends)
	}
	if p.Bio != model.DefaultBio || p.Privacy != model.PrivacyFriendsOnly {
		t.Errorf("Profile() = %+v", p)
	}
}

func TestProfile_UnknownUser(t *testing.T) {
	svc, _ := newTestUserService(t)
	if _, err := svc.Profile(context.Background(), "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Profile() error = %v, want ErrNotFound", err)
	}
}
