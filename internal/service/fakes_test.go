package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory implementation of every repository interface.
// A fake (rather than a mock framework) keeps the behaviour visible in one
// place; the SQL implementation has its own tests against real SQLite.
type fakeStore struct {
	mu sync.Mutex

	users      map[string]*model.User // by username
	movies     map[int64]model.Movie
	watchlists map[string][]model.WatchlistEntry // by user id
	friends    map[[2]string]bool                 // both directions stored
	requests   map[string]*model.FriendRequest
	nextID     int

	// set to simulate a database failure inside the save transaction
	saveErr error
	// counts calls so tests can tell cache hits from misses
	watchlistReads int
}

var (
	_ repository.UserRepository      = (*fakeStore)(nil)
	_ repository.MovieRepository     = (*fakeStore)(nil)
	_ repository.WatchlistRepository = (*fakeStore)(nil)
	_ repository.FriendRepository    = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*model.User),
		movies:     make(map[int64]model.Movie),
		watchlists: make(map[string][]model.WatchlistEntry),
		friends:    make(map[[2]string]bool),
		requests:   make(map[string]*model.FriendRequest),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return prefix + "-" + strconv.Itoa(f.nextID)
}

// ----- users -----

func (f *fakeStore) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return apperror.Conflict("user", "username or email already in use")
		}
	}
	user.ID = f.id("user")
	user.CreatedAt = time.Now()
	if user.Privacy == "" {
		user.Privacy = model.PrivacyPrivate
	}
	cp := *user
	f.users[user.Username] = &cp
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	if u, err := f.GetUserByUsername(ctx, username); err == nil {
		return u, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) ListUsersWithWatchlists(ctx context.Context) ([]model.UserWithWatchlist, error) {
	users, _ := f.ListUsers(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.UserWithWatchlist{}
	for _, u := range users {
		n := len(f.watchlists[u.ID])
		if u.Privacy == model.PrivacyPrivate || n == 0 {
			continue
		}
		out = append(out, model.UserWithWatchlist{
			ID: u.ID, Username: u.Username, FavoriteGenres: u.FavoriteGenres,
			Privacy: u.Privacy, WatchlistCount: n,
		})
	}
	return out, nil
}

func (f *fakeStore) UpdatePrivacy(ctx context.Context, username string, privacy model.Privacy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return apperror.NotFound("user", username)
	}
	u.Privacy = privacy
	return nil
}

func (f *fakeStore) UpdateBio(ctx context.Context, username, bio string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return apperror.NotFound("user", username)
	}
	u.Bio = bio
	return nil
}

// ----- movies -----

func (f *fakeStore) ListMovies(ctx context.Context) ([]model.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Movie{}
	for _, m := range f.movies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpsertMovies(ctx context.Context, movies []model.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range movies {
		f.movies[m.ID] = m
	}
	return nil
}

// ----- watchlists -----

func (f *fakeStore) GetWatchlist(ctx context.Context, username string) (*model.Watchlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchlistReads++
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	items := []model.WatchlistItem{}
	for _, e := range f.watchlists[u.ID] {
		items = append(items, model.WatchlistItem{Movie: f.movies[e.MovieID], Watched: e.Watched, Favorite: e.Favorite})
	}
	return &model.Watchlist{Items: items, Version: u.WatchlistVersion}, nil
}

func (f *fakeStore) CountEntries(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchlists[userID]), nil
}

// ReplaceWatchlist mirrors the SQL transaction: nothing is written unless
// every step succeeds.
func (f *fakeStore) ReplaceWatchlist(
	ctx context.Context, username string, entries []model.WatchlistEntry,
	baseVersion *int64, derive func([]string) string,
) (*model.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	if baseVersion != nil && *baseVersion != u.WatchlistVersion {
		return nil, apperror.Conflict("watchlist", "stale version")
	}
	genres := make([]string, 0, len(entries))
	seen := make(map[int64]bool)
	for _, e := range entries {
		m, ok := f.movies[e.MovieID]
		if !ok {
			return nil, apperror.NotFound("movie", strconv.FormatInt(e.MovieID, 10))
		}
		if seen[e.MovieID] {
			return nil, fmt.Errorf("fake: duplicate movie %d", e.MovieID)
		}
		seen[e.MovieID] = true
		genres = append(genres, m.Genre)
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}

	f.watchlists[u.ID] = append([]model.WatchlistEntry(nil), entries...)
	u.FavoriteGenres = derive(genres)
	u.WatchlistVersion++
	return &model.SaveResult{FavoriteGenres: u.FavoriteGenres, Version: u.WatchlistVersion}, nil
}

func (f *fakeStore) AllEntries(ctx context.Context) (map[string][]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]int64)
	for uid, entries := range f.watchlists {
		for _, e := range entries {
			out[uid] = append(out[uid], e.MovieID)
		}
	}
	return out, nil
}

// ----- friends -----

func (f *fakeStore) ListFriends(ctx context.Context, userID string) ([]model.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.UserRef{}
	for pair := range f.friends {
		if pair[0] != userID {
			continue
		}
		for _, u := range f.users {
			if u.ID == pair[1] {
				out = append(out, model.UserRef{ID: u.ID, Username: u.Username})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends[[2]string{a, b}] || f.friends[[2]string{b, a}], nil
}

func (f *fakeStore) listPending(match func(*model.FriendRequest) (string, bool)) []model.PendingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.PendingRequest{}
	for _, r := range f.requests {
		if r.Status != model.RequestPending {
			continue
		}
		if other, ok := match(r); ok {
			name := ""
			for _, u := range f.users {
				if u.ID == other {
					name = u.Username
				}
			}
			out = append(out, model.PendingRequest{ID: r.ID, UserID: other, Username: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListIncomingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return f.listPending(func(r *model.FriendRequest) (string, bool) { return r.SenderID, r.ReceiverID == userID }), nil
}

func (f *fakeStore) ListOutgoingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return f.listPending(func(r *model.FriendRequest) (string, bool) { return r.ReceiverID, r.SenderID == userID }), nil
}

func (f *fakeStore) GetRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, apperror.NotFound("friend request", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) PendingRequestBetween(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID && r.Status == model.RequestPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("friend request", senderID+"->"+receiverID)
}

func (f *fakeStore) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	if _, err := f.PendingRequestBetween(ctx, req.SenderID, req.ReceiverID); err == nil {
		return apperror.Conflict("friend request", "a request is already pending")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	req.ID = f.id("req")
	req.Status = model.RequestPending
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeStore) AcceptRequest(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != model.RequestPending {
		return apperror.NotFound("friend request", id)
	}
	r.Status = model.RequestAccepted
	f.friends[[2]string{r.SenderID, r.ReceiverID}] = true
	f.friends[[2]string{r.ReceiverID, r.SenderID}] = true
	return nil
}

func (f *fakeStore) DeleteRequest(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != model.RequestPending {
		return apperror.NotFound("friend request", id)
	}
	delete(f.requests, id)
	return nil
}

func (f *fakeStore) DeleteFriendship(ctx context.Context, a, b string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.friends[[2]string{a, b}] && !f.friends[[2]string{b, a}] {
		return apperror.NotFound("friendship", a+"/"+b)
	}
	delete(f.friends, [2]string{a, b})
	delete(f.friends, [2]string{b, a})
	for id, r := range f.requests {
		if (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a) {
			delete(f.requests, id)
		}
	}
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache() *cache.ReadThrough {
	return cache.New(cache.NewMemory(), time.Minute, discardLogger())
}

// addUser creates a user directly in the fake and returns it.
func (f *fakeStore) addUser(t *testing.T, username string, privacy model.Privacy) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", Privacy: privacy}
	if err := f.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("addUser(%s): %v", username, err)
	}
	return u
}

func (f *fakeStore) befriend(a, b *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[[2]string{a.ID, b.ID}] = true
	f.friends[[2]string{b.ID, a.ID}] = true
}

// seedMovies loads a small catalog with known genres and ratings.
func (f *fakeStore) seedMovies() {
	f.UpsertMovies(context.Background(), []model.Movie{
		{ID: 1, Title: "Heat", Genre: "Action,Drama", Rating: 8.3, ReleaseYear: 1995},
		{ID: 2, Title: "Moonlight", Genre: "Drama", Rating: 7.4, ReleaseYear: 2016},
		{ID: 3, Title: "Alien", Genre: "Horror, Sci-Fi", Rating: 8.5, ReleaseYear: 1979},
		{ID: 4, Title: "Arrival", Genre: "Sci-Fi, Drama", Rating: 7.9, ReleaseYear: 2016},
		{ID: 5, Title: "The Thing", Genre: "Horror", Rating: 8.2, ReleaseYear: 1982},
		{ID: 6, Title: "Parasite", Genre: "Drama, Thriller", Rating: 8.5, ReleaseYear: 2019},
	})
}

func entriesFor(ids ...int64) []model.WatchlistEntry {
	out := make([]model.WatchlistEntry, len(ids))
	for i, id := range ids {
		out[i] = model.WatchlistEntry{MovieID: id}
	}
	return out
}
