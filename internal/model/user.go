// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultBio is shown for users who have never written a profile description.
const DefaultBio = "This user has no description yet"

// Privacy controls who may read a user's watchlist.
type Privacy string

const (
	PrivacyPrivate     Privacy = "private"
	PrivacyFriendsOnly Privacy = "friendsonly"
	PrivacyPublic      Privacy = "public"
)

// Valid reports whether p is one of the supported values.
func (p Privacy) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyFriendsOnly, PrivacyPublic:
		return true
	}
	return false
}

// User is a registered account.
//
// WHY PasswordHash HAS json:"-"?
// The struct is returned directly by some handlers. Tagging the hash with "-"
// means encoding/json never writes it, so it cannot leak into a response even
// if a handler forgets to build a DTO.
//
// FavoriteGenres is derived: it is recomputed from the submitted movies on
// every watchlist save and never written by the user directly.
//
// WatchlistVersion increases by one on every successful save. Clients may send
// it back as a base version to detect that another tab saved in between.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	FavoriteGenres   string    `json:"favoriteGenres"`
	Bio              string    `json:"bio"`
	Privacy          Privacy   `json:"privacy"`
	WatchlistVersion int64     `json:"watchlistVersion"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DisplayBio returns the bio, or DefaultBio when none has been written.
func (u *User) DisplayBio() string {
	if u.Bio == "" {
		return DefaultBio
	}
	return u.Bio
}

// UserSummary is the public listing shape for GET /api/users.
type UserSummary struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	FavoriteGenres string `json:"favoriteGenres"`
	Bio            string `json:"bio"`
}

// UserWithWatchlist is a browsable user: not private, with at least one entry.
type UserWithWatchlist struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	FavoriteGenres string  `json:"favoriteGenres"`
	Privacy        Privacy `json:"privacy"`
	WatchlistCount int     `json:"watchlistCount"`
}

// Profile is the aggregated view served by GET /api/profile/{username}.
type Profile struct {
	Username       string    `json:"username"`
	Bio            string    `json:"bio"`
	FavoriteGenres string    `json:"favoriteGenres"`
	Privacy        Privacy   `json:"privacy"`
	WatchlistCount int       `json:"watchlistCount"`
	Friends        []UserRef `json:"friends"`
}

// UserRef is the minimal {id, username} pair used in friend listings.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
