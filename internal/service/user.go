package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// MaxBioLength is the longest profile description accepted, in characters.
const MaxBioLength = 500

// UserService serves user listings and the editable profile fields.
type UserService struct {
	users      repository.UserRepository
	watchlists repository.WatchlistRepository
	friends    repository.FriendRepository
	cache      *cache.ReadThrough
	logger     *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	watchlists repository.WatchlistRepository,
	friends repository.FriendRepository,
	rt *cache.ReadThrough,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:      users,
		watchlists: watchlists,
		friends:    friends,
		cache:      rt,
		logger:     logger,
	}
}

// lookupUser is the cached user-by-username read shared by every service.
func lookupUser(ctx context.Context, rt *cache.ReadThrough, users repository.UserRepository, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	u, err := cache.GetOrLoad(ctx, rt, cache.UserKey(username), func(ctx context.Context) (*model.User, error) {
		return users.GetUserByUsername(ctx, username)
	})
	if err != nil {
		return nil, fmt.Errorf("service: looking up user %s: %w", username, err)
	}
	return u, nil
}

// GetUser returns the user record for username.
func (s *UserService) GetUser(ctx context.Context, username string) (*model.User, error) {
	return lookupUser(ctx, s.cache, s.users, username)
}

// ListUsers returns every user with display defaults applied.
func (s *UserService) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	out, err := cache.GetOrLoad(ctx, s.cache, cache.AllUsersKey(), func(ctx context.Context) ([]model.UserSummary, error) {
		users, err := s.users.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]model.UserSummary, 0, len(users))
		for i := range users {
			u := &users[i]
			summaries = append(summaries, model.UserSummary{
				ID:             u.ID,
				Username:       u.Username,
				Email:          u.Email,
				FavoriteGenres: u.FavoriteGenres,
				Bio:            u.DisplayBio(),
			})
		}
		return summaries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return out, nil
}

// ListUsersWithWatchlists returns the users other people can browse.
func (s *UserService) ListUsersWithWatchlists(ctx context.Context) ([]model.UserWithWatchlist, error) {
	out, err := cache.GetOrLoad(ctx, s.cache, cache.UsersWithWatchlistsKey(), s.users.ListUsersWithWatchlists)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users with watchlists: %w", err)
	}
	return out, nil
}

func (s *UserService) GetPrivacy(ctx context.Context, username string) (model.Privacy, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return "", err
	}
	return u.Privacy, nil
}

// UpdatePrivacy changes who may read the user's watchlist. Only the user
// themself may change it.
func (s *UserService) UpdatePrivacy(ctx context.Context, sessionUser, username, privacy string) error {
	if err := s.checkOwner(sessionUser, username, "privacy"); err != nil {
		return err
	}
	p := model.Privacy(strings.ToLower(strings.TrimSpace(privacy)))
	if !p.Valid() {
		return apperror.ValidationFailed("privacy", "Unsupported privacy value: "+privacy)
	}

	if err := s.users.UpdatePrivacy(ctx, username, p); err != nil {
		return fmt.Errorf("service/user: updating privacy for %s: %w", username, err)
	}

	s.evictProfile(ctx, username)
	s.logger.Info("privacy updated", slog.String("username", username), slog.String("privacy", string(p)))
	return nil
}

// GetBio returns the profile description, or the default placeholder.
func (s *UserService) GetBio(ctx context.Context, username string) (string, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return "", err
	}
	return u.DisplayBio(), nil
}

// UpdateBio replaces the profile description and returns the stored value.
func (s *UserService) UpdateBio(ctx context.Context, sessionUser, username, description string) (string, error) {
	if err := s.checkOwner(sessionUser, username, "profile"); err != nil {
		return "", err
	}
	bio := strings.TrimSpace(description)
	if bio == "" {
		return "", apperror.ValidationFailed("description", "Description cannot be empty")
	}
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return "", apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be %d characters or fewer", MaxBioLength))
	}

	if err := s.users.UpdateBio(ctx, username, bio); err != nil {
		return "", fmt.Errorf("service/user: updating bio for %s: %w", username, err)
	}

	s.evictProfile(ctx, username)
	return bio, nil
}

// Profile assembles the public profile page.
//
// The user record comes first (everything else is keyed by its id); the
// watchlist count and the friend list are then fetched concurrently.
func (s *UserService) Profile(ctx context.Context, username string) (*model.Profile, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}

	p := &model.Profile{
		Username:       u.Username,
		Bio:            u.DisplayBio(),
		FavoriteGenres: u.FavoriteGenres,
		Privacy:        u.Privacy,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.watchlists.CountEntries(gctx, u.ID)
		if err != nil {
			return err
		}
		p.WatchlistCount = n
		return nil
	})
	g.Go(func() error {
		friends, err := cachedFriends(gctx, s.cache, s.friends, u.ID)
		if err != nil {
			return err
		}
		p.Friends = friends
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/user: building profile for %s: %w", username, err)
	}
	return p, nil
}

func (s *UserService) checkOwner(sessionUser, username, what string) error {
	if strings.TrimSpace(username) == "" {
		return apperror.ValidationFailed("username", "Username is required")
	}
	if sessionUser != username {
		return apperror.Forbidden("You can only change your own " + what)
	}
	return nil
}

func (s *UserService) evictProfile(ctx context.Context, username string) {
	s.cache.Invalidate(ctx,
		cache.UserKey(username),
		cache.AllUsersKey(),
		cache.UsersWithWatchlistsKey(),
	)
}
