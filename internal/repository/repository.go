// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (sqldb); tests use fakes.
package repository

import (
	"context"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a new user and fills in ID and timestamps.
	// Returns apperror.ErrConflict if the username or email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// FindUserByUsernameOrEmail returns apperror.ErrNotFound when neither matches.
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// ListUsersWithWatchlists returns non-private users that have at least one entry.
	ListUsersWithWatchlists(ctx context.Context) ([]model.UserWithWatchlist, error)
	UpdatePrivacy(ctx context.Context, username string, privacy model.Privacy) error
	UpdateBio(ctx context.Context, username, bio string) error
}

type MovieRepository interface {
	ListMovies(ctx context.Context) ([]model.Movie, error)
	// UpsertMovies inserts or replaces catalog rows by id.
	UpsertMovies(ctx context.Context, movies []model.Movie) error
}

type WatchlistRepository interface {
	// GetWatchlist returns the user's items in saved order along with the
	// current version. Unknown users yield apperror.ErrNotFound.
	GetWatchlist(ctx context.Context, username string) (*model.Watchlist, error)
	CountEntries(ctx context.Context, userID string) (int, error)
	// ReplaceWatchlist atomically swaps the user's entire entry set and writes
	// the derived favorite genres. derive is called inside the transaction with
	// the genre list of every submitted movie, in submission order.
	//
	// If baseVersion is non-nil and differs from the stored version, nothing
	// changes and apperror.ErrConflict is returned.
	ReplaceWatchlist(ctx context.Context, username string, entries []model.WatchlistEntry,
		baseVersion *int64, derive func(genres []string) string) (*model.SaveResult, error)
	// AllEntries returns every user's movie ids, keyed by user id.
	AllEntries(ctx context.Context) (map[string][]int64, error)
}

type FriendRepository interface {
	ListFriends(ctx context.Context, userID string) ([]model.UserRef, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error)
	ListOutgoingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error)
	GetRequest(ctx context.Context, id string) (*model.FriendRequest, error)
	// PendingRequestBetween returns the pending request sender→receiver, or
	// apperror.ErrNotFound.
	PendingRequestBetween(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error)
	CreateRequest(ctx context.Context, req *model.FriendRequest) error
	// AcceptRequest marks the request accepted and creates both friend rows
	// in one transaction.
	AcceptRequest(ctx context.Context, id string) error
	DeleteRequest(ctx context.Context, id string) error
	// DeleteFriendship removes both friend rows and every request between the pair.
	DeleteFriendship(ctx context.Context, a, b string) error
}
