package cache

// Keys are derived from the logical identity of the query, never from the
// SQL text, so readers and writers agree on them without sharing queries.

const (
	recommendationsPrefix = "recommendations_"
)

func MoviesKey() string              { return "movies" }
func AllUsersKey() string            { return "all_users" }
func UsersWithWatchlistsKey() string { return "users_with_watchlists" }

// WatchlistKey caches GET /api/getWatchList for a username.
func WatchlistKey(username string) string { return "watchlist_" + username }

// UserKey caches the user record by username. It carries favorite_genres,
// privacy and bio, so saves and profile edits evict it.
func UserKey(username string) string { return "user_" + username }

// FriendsKey and the request keys are per user id, matching how the
// friendship tables are indexed.
func FriendsKey(userID string) string            { return "friends_" + userID }
func FriendRequestsKey(userID string) string     { return "friend_requests_" + userID }
func SentFriendRequestsKey(userID string) string { return "sent_friend_requests_" + userID }

// RecommendationsKey caches GET /api/recommendations for a username.
func RecommendationsKey(username string) string { return recommendationsPrefix + username }

// RecommendationsPrefix matches every per-user recommendation entry. Any
// watchlist save can change anyone's recommendations, so saves evict them all.
func RecommendationsPrefix() string { return recommendationsPrefix }
