package sqldb

import (
	"context"
	"fmt"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

var _ repository.MovieRepository = (*DB)(nil)

const movieColumns = `m.id, m.title, m.release_year, m.genre, m.director, m.cast_members,
	m.duration, m.rating, m.description`

func scanMovie(s rowScanner, extra ...any) (model.Movie, error) {
	var m model.Movie
	dest := append([]any{
		&m.ID,
		&m.Title,
		&m.ReleaseYear,
		&m.Genre,
		&m.Director,
		&m.Cast,
		&m.Duration,
		&m.Rating,
		&m.Description,
	}, extra...)
	err := s.Scan(dest...)
	return m, err
}

// ListMovies returns the whole catalog ordered by id.
func (db *DB) ListMovies(ctx context.Context) ([]model.Movie, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+movieColumns+` FROM movies m ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing movies: %w", err)
	}
	defer rows.Close()

	movies := []model.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning movie row: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating movie rows: %w", err)
	}
	return movies, nil
}

// UpsertMovies loads catalog rows in one transaction. Existing ids are
// overwritten so re-importing an edited catalog file is safe.
func (db *DB) UpsertMovies(ctx context.Context, movies []model.Movie) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: beginning movie import: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, db.rebind(
		`INSERT INTO movies (id, title, release_year, genre, director, cast_members, duration, rating, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			release_year = excluded.release_year,
			genre = excluded.genre,
			director = excluded.director,
			cast_members = excluded.cast_members,
			duration = excluded.duration,
			rating = excluded.rating,
			description = excluded.description`))
	if err != nil {
		return fmt.Errorf("sqldb: preparing movie upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range movies {
		if _, err = stmt.ExecContext(ctx,
			m.ID, m.Title, m.ReleaseYear, m.Genre, m.Director, m.Cast, m.Duration, m.Rating, m.Description,
		); err != nil {
			return fmt.Errorf("sqldb: upserting movie %d: %w", m.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: committing movie import: %w", err)
	}
	return nil
}
