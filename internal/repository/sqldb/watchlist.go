package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

var _ repository.WatchlistRepository = (*DB)(nil)

// GetWatchlist returns the user's entries joined with their movies, in the
// order they were saved, together with the version they belong to.
//
// Both reads happen in one transaction so the version always describes
// exactly the rows returned.
func (db *DB) GetWatchlist(ctx context.Context, username string) (wl *model.Watchlist, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqldb: beginning watchlist read: %w", err)
	}
	// A read-only transaction has nothing to commit; rollback just releases it.
	defer tx.Rollback()

	var userID string
	var version int64
	err = tx.QueryRowContext(ctx, db.rebind(
		`SELECT id, watchlist_version FROM users WHERE username = ?`), username,
	).Scan(&userID, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqldb: resolving user %s: %w", username, err)
	}

	rows, err := tx.QueryContext(ctx, db.rebind(
		`SELECT `+movieColumns+`, w.watched, w.favorite
		 FROM watchlists w
		 JOIN movies m ON m.id = w.movie_id
		 WHERE w.user_id = ?
		 ORDER BY w.position, m.id`), userID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: querying watchlist for %s: %w", username, err)
	}
	defer rows.Close()

	items := []model.WatchlistItem{}
	for rows.Next() {
		var item model.WatchlistItem
		m, err := scanMovie(rows, &item.Watched, &item.Favorite)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning watchlist row: %w", err)
		}
		item.Movie = m
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating watchlist rows: %w", err)
	}

	return &model.Watchlist{Items: items, Version: version}, nil
}

// CountEntries returns how many movies the user has saved.
func (db *DB) CountEntries(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT COUNT(*) FROM watchlists WHERE user_id = ?`), userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqldb: counting watchlist for %s: %w", userID, err)
	}
	return n, nil
}

// ReplaceWatchlist is the replace-all save.
//
// TRANSACTION STEPS:
//  1. Resolve username → id (and lock the row on Postgres). Unknown → NotFound,
//     before anything is touched.
//  2. If the caller sent a base version, compare it. Mismatch → Conflict.
//  3. Look up the genre of every submitted movie. Unknown id → NotFound.
//  4. DELETE every existing entry for the user.
//  5. INSERT the submitted entries, recording their position.
//  6. derive(genres) → favorite_genres; bump watchlist_version.
//  7. COMMIT.
//
// ALL OR NOTHING:
// Every return path before Commit rolls back (see the deferred func), so a
// failure at any step leaves the previous watchlist and favorite_genres
// exactly as they were.
//
// The caller must pass entries with distinct movie ids; a duplicate violates
// the (user_id, movie_id) primary key and aborts the save.
func (db *DB) ReplaceWatchlist(
	ctx context.Context,
	username string,
	entries []model.WatchlistEntry,
	baseVersion *int64,
	derive func(genres []string) string,
) (result *model.SaveResult, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqldb: beginning watchlist save: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// --- Step 1: resolve the user ---
	var userID string
	var version int64
	err = tx.QueryRowContext(ctx, db.rebind(
		`SELECT id, watchlist_version FROM users WHERE username = ?`+db.forUpdate()), username,
	).Scan(&userID, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqldb: resolving user %s: %w", username, err)
	}

	// --- Step 2: optimistic concurrency ---
	if baseVersion != nil && *baseVersion != version {
		return nil, apperror.Conflict("watchlist",
			fmt.Sprintf("saved against version %d but the current version is %d", *baseVersion, version))
	}

	// --- Step 3: genres of the submitted movies ---
	genres, err := db.genresFor(ctx, tx, entries)
	if err != nil {
		return nil, err
	}

	// --- Step 4: delete ---
	if _, err = tx.ExecContext(ctx, db.rebind(`DELETE FROM watchlists WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("sqldb: clearing watchlist for %s: %w", username, err)
	}

	// --- Step 5: insert ---
	if len(entries) > 0 {
		stmt, perr := tx.PrepareContext(ctx, db.rebind(
			`INSERT INTO watchlists (user_id, movie_id, watched, favorite, position) VALUES (?, ?, ?, ?, ?)`))
		if perr != nil {
			err = perr
			return nil, fmt.Errorf("sqldb: preparing watchlist insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range entries {
			if _, err = stmt.ExecContext(ctx, userID, e.MovieID, e.Watched, e.Favorite, i); err != nil {
				return nil, fmt.Errorf("sqldb: inserting movie %d for %s: %w", e.MovieID, username, err)
			}
		}
	}

	// --- Step 6: derived field + version ---
	favorite := derive(genres)
	_, err = tx.ExecContext(ctx, db.rebind(
		`UPDATE users SET favorite_genres = ?, watchlist_version = watchlist_version + 1, updated_at = ?
		 WHERE id = ?`),
		favorite, time.Now().UTC(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: updating favorite genres for %s: %w", username, err)
	}

	// --- Step 7: commit ---
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqldb: committing watchlist save for %s: %w", username, err)
	}

	return &model.SaveResult{FavoriteGenres: favorite, Version: version + 1}, nil
}

// genresFor returns the genre string of each entry's movie, in entry order.
//
// The rows are read to completion before returning: on SQLite the pool has a
// single connection, and the transaction cannot issue the next statement
// while a result set is still open.
func (db *DB) genresFor(ctx context.Context, tx *sql.Tx, entries []model.WatchlistEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	args := make([]any, len(entries))
	for i, e := range entries {
		args[i] = e.MovieID
	}

	rows, err := tx.QueryContext(ctx, db.rebind(
		`SELECT id, genre FROM movies WHERE id IN (`+placeholders(len(args))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: looking up movie genres: %w", err)
	}
	byID := make(map[int64]string, len(entries))
	for rows.Next() {
		var id int64
		var genre string
		if err := rows.Scan(&id, &genre); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqldb: scanning movie genre: %w", err)
		}
		byID[id] = genre
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqldb: iterating movie genres: %w", err)
	}
	rows.Close()

	genres := make([]string, len(entries))
	for i, e := range entries {
		g, ok := byID[e.MovieID]
		if !ok {
			return nil, apperror.NotFound("movie", strconv.FormatInt(e.MovieID, 10))
		}
		genres[i] = g
	}
	return genres, nil
}

// AllEntries returns the movie ids of every saved watchlist keyed by user id.
// It feeds the recommendation engine.
func (db *DB) AllEntries(ctx context.Context) (map[string][]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, movie_id FROM watchlists ORDER BY user_id, position`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing watchlist entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int64)
	for rows.Next() {
		var userID string
		var movieID int64
		if err := rows.Scan(&userID, &movieID); err != nil {
			return nil, fmt.Errorf("sqldb: scanning watchlist entry: %w", err)
		}
		out[userID] = append(out[userID], movieID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating watchlist entries: %w", err)
	}
	return out, nil
}
