package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// MovieService serves the read-only catalog.
type MovieService struct {
	movies repository.MovieRepository
	cache  *cache.ReadThrough
	logger *slog.Logger
}

func NewMovieService(movies repository.MovieRepository, rt *cache.ReadThrough, logger *slog.Logger) *MovieService {
	return &MovieService{movies: movies, cache: rt, logger: logger}
}

// List returns the whole catalog ordered by id.
func (s *MovieService) List(ctx context.Context) ([]model.Movie, error) {
	movies, err := cache.GetOrLoad(ctx, s.cache, cache.MoviesKey(), s.movies.ListMovies)
	if err != nil {
		return nil, fmt.Errorf("service/movie: listing catalog: %w", err)
	}
	return movies, nil
}

// Import upserts catalog rows read as a JSON array of movies.
func (s *MovieService) Import(ctx context.Context, r io.Reader) (int, error) {
	var movies []model.Movie
	if err := json.NewDecoder(r).Decode(&movies); err != nil {
		return 0, apperror.ValidationFailed("catalog", "Catalog must be a JSON array of movies: "+err.Error())
	}
	for _, m := range movies {
		if m.ID <= 0 || m.Title == "" {
			return 0, apperror.ValidationFailed("catalog",
				fmt.Sprintf("Every movie needs a positive id and a title (got id %d)", m.ID))
		}
	}

	if err := s.movies.UpsertMovies(ctx, movies); err != nil {
		return 0, fmt.Errorf("service/movie: importing catalog: %w", err)
	}

	// Recommendations embed catalog ids and the cold-start ranking.
	s.cache.Invalidate(ctx, cache.MoviesKey())
	s.cache.InvalidatePrefix(ctx, cache.RecommendationsPrefix())

	s.logger.Info("catalog imported", slog.Int("movies", len(movies)))
	return len(movies), nil
}

// ImportFile imports the catalog file at path.
func (s *MovieService) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("service/movie: opening catalog: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f)
}
