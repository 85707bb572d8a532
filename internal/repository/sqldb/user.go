package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, favorite_genres, bio, publicity,
	watchlist_version, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	var privacy string
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FavoriteGenres,
		&u.Bio,
		&privacy,
		&u.WatchlistVersion,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Privacy = model.Privacy(privacy)
	return &u, nil
}

// CreateUser inserts a new account.
//
// UNIQUENESS IS THE DATABASE'S JOB:
// Checking "does this username exist?" and then inserting leaves a window
// where two registrations race. The UNIQUE constraints on username and email
// close that window; we only translate the resulting error.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Privacy == "" {
		user.Privacy = model.PrivacyPrivate
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO users (id, username, email, password_hash, favorite_genres, bio, publicity,
			watchlist_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FavoriteGenres,
		user.Bio,
		string(user.Privacy),
		user.WatchlistVersion,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "username or email already in use")
		}
		return fmt.Errorf("sqldb: inserting user %s: %w", user.Username, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by their unique username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqldb: getting user %s: %w", username, err)
	}
	return u, nil
}

// FindUserByUsernameOrEmail is used by GitHub sign-in to link an existing account.
func (db *DB) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users
		 WHERE username = ? OR (email <> '' AND email = ?)
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		 LIMIT 1`), username, email, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqldb: finding user %s: %w", username, err)
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating user rows: %w", err)
	}
	return users, nil
}

// ListUsersWithWatchlists returns browsable users: anyone who is not private
// and has saved at least one movie.
func (db *DB) ListUsersWithWatchlists(ctx context.Context) ([]model.UserWithWatchlist, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT u.id, u.username, u.favorite_genres, u.publicity, COUNT(w.movie_id)
		 FROM users u
		 JOIN watchlists w ON w.user_id = u.id
		 WHERE u.publicity <> ?
		 GROUP BY u.id, u.username, u.favorite_genres, u.publicity
		 ORDER BY u.username`), string(model.PrivacyPrivate))
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users with watchlists: %w", err)
	}
	defer rows.Close()

	users := []model.UserWithWatchlist{}
	for rows.Next() {
		var u model.UserWithWatchlist
		var privacy string
		if err := rows.Scan(&u.ID, &u.Username, &u.FavoriteGenres, &privacy, &u.WatchlistCount); err != nil {
			return nil, fmt.Errorf("sqldb: scanning user row: %w", err)
		}
		u.Privacy = model.Privacy(privacy)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating user rows: %w", err)
	}
	return users, nil
}

// UpdatePrivacy sets who may read the user's watchlist.
func (db *DB) UpdatePrivacy(ctx context.Context, username string, privacy model.Privacy) error {
	return db.updateUserField(ctx, username, "publicity", string(privacy))
}

// UpdateBio replaces the user's profile description.
func (db *DB) UpdateBio(ctx context.Context, username, bio string) error {
	return db.updateUserField(ctx, username, "bio", bio)
}

// updateUserField is only called with column names from this file, never
// with user input, so formatting it into the query is safe.
func (db *DB) updateUserField(ctx context.Context, username, column, value string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(fmt.Sprintf(
		`UPDATE users SET %s = ?, updated_at = ? WHERE username = ?`, column)),
		value, time.Now().UTC(), username,
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating %s for %s: %w", column, username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", username)
	}
	return nil
}
