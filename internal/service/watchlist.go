// Package service holds the business rules of the watchlist application.
//
// LAYERING:
//
//	Handler (HTTP) → Service (rules, cache, authorization) → Repository (SQL)
//
// Services never see an http.Request and never pick status codes. They return
// apperror values and the handler layer maps them to HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// WatchlistService reads and saves watchlists.
type WatchlistService struct {
	watchlists repository.WatchlistRepository
	users      repository.UserRepository
	friends    repository.FriendRepository
	cache      *cache.ReadThrough
	logger     *slog.Logger
}

func NewWatchlistService(
	watchlists repository.WatchlistRepository,
	users repository.UserRepository,
	friends repository.FriendRepository,
	rt *cache.ReadThrough,
	logger *slog.Logger,
) *WatchlistService {
	return &WatchlistService{
		watchlists: watchlists,
		users:      users,
		friends:    friends,
		cache:      rt,
		logger:     logger,
	}
}

// Get returns username's watchlist as seen by viewer.
//
// WHO MAY READ IT:
//   - the owner, always
//   - anyone logged in, when the owner's privacy is public
//   - the owner's friends, when it is friendsonly
//
// Everyone else gets ErrForbidden. The check runs before the cache lookup so
// a cached list is never handed to someone who may not see it.
func (s *WatchlistService) Get(ctx context.Context, viewer, username string) (*model.Watchlist, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}

	if viewer != username {
		if err := s.checkReadable(ctx, viewer, username); err != nil {
			return nil, err
		}
	}

	wl, err := cache.GetOrLoad(ctx, s.cache, cache.WatchlistKey(username), func(ctx context.Context) (*model.Watchlist, error) {
		return s.watchlists.GetWatchlist(ctx, username)
	})
	if err != nil {
		return nil, fmt.Errorf("service/watchlist: loading %s: %w", username, err)
	}
	return wl, nil
}

func (s *WatchlistService) checkReadable(ctx context.Context, viewer, owner string) error {
	u, err := lookupUser(ctx, s.cache, s.users, owner)
	if err != nil {
		return err
	}

	switch u.Privacy {
	case model.PrivacyPublic:
		return nil
	case model.PrivacyFriendsOnly:
		v, err := lookupUser(ctx, s.cache, s.users, viewer)
		if err != nil {
			return err
		}
		ok, err := s.friends.AreFriends(ctx, v.ID, u.ID)
		if err != nil {
			return fmt.Errorf("service/watchlist: checking friendship: %w", err)
		}
		if ok {
			return nil
		}
		return apperror.Forbidden(owner + "'s watchlist is only visible to friends")
	default:
		return apperror.Forbidden(owner + "'s watchlist is private")
	}
}

// Save replaces the whole watchlist of username with entries.
//
// Only the logged-in user may save their own list. Repeated movie ids are
// collapsed (last flags win, first position kept) before the transaction
// runs, so the stored row count equals the number of distinct ids.
//
// When baseVersion is non-nil the save is rejected with ErrConflict if
// another save has landed since the caller read the list.
//
// AFTER COMMIT, EVICT:
//   - watchlist_<u>          the list itself
//   - user_<u>               carries favorite_genres and the version
//   - all_users, users_with_watchlists   both show favorite_genres
//   - recommendations_*      any save changes everyone's similarity scores
func (s *WatchlistService) Save(
	ctx context.Context,
	sessionUser, username string,
	entries []model.WatchlistEntry,
	baseVersion *int64,
) (*model.SaveResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	if sessionUser != username {
		return nil, apperror.Forbidden("You can only save your own watchlist")
	}
	for _, e := range entries {
		if e.MovieID <= 0 {
			return nil, apperror.ValidationFailed("movieTitles",
				fmt.Sprintf("Invalid movie id %d", e.MovieID))
		}
	}

	entries = dedupeEntries(entries)

	result, err := s.watchlists.ReplaceWatchlist(ctx, username, entries, baseVersion, DeriveTopGenres)
	if err != nil {
		return nil, fmt.Errorf("service/watchlist: saving %s: %w", username, err)
	}

	s.cache.Invalidate(ctx,
		cache.WatchlistKey(username),
		cache.UserKey(username),
		cache.AllUsersKey(),
		cache.UsersWithWatchlistsKey(),
	)
	s.cache.InvalidatePrefix(ctx, cache.RecommendationsPrefix())

	s.logger.Info("watchlist saved",
		slog.String("username", username),
		slog.Int("entries", len(entries)),
		slog.Int64("version", result.Version),
		slog.String("favoriteGenres", result.FavoriteGenres),
	)
	return result, nil
}
