package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

const (
	// similarUsers is how many neighbours contribute recommendations.
	similarUsers = 5
	// fallbackCount caps the cold-start and genre fallback lists.
	fallbackCount = 5
)

// RecommendationService suggests movies from what similar users saved.
//
// ALGORITHM:
//  1. Every user is a binary vector over the catalog (1 = movie saved).
//     A user with an empty list gets the best-rated movies instead.
//  2. Cosine similarity against every other user; keep the 5 most similar
//     with a similarity above zero.
//  3. Recommend the movies those neighbours saved that the user has not.
//  4. No neighbour found anything new? Fall back to unsaved movies from
//     the user's most frequent genre.
//
// Results are cached per user and every watchlist save evicts them all.
type RecommendationService struct {
	watchlists repository.WatchlistRepository
	users      repository.UserRepository
	movies     *MovieService
	cache      *cache.ReadThrough
	logger     *slog.Logger
}

func NewRecommendationService(
	watchlists repository.WatchlistRepository,
	users repository.UserRepository,
	movies *MovieService,
	rt *cache.ReadThrough,
	logger *slog.Logger,
) *RecommendationService {
	return &RecommendationService{
		watchlists: watchlists,
		users:      users,
		movies:     movies,
		cache:      rt,
		logger:     logger,
	}
}

// Recommend returns recommended movie ids for username.
func (s *RecommendationService) Recommend(ctx context.Context, username string) ([]int64, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}

	ids, err := cache.GetOrLoad(ctx, s.cache, cache.RecommendationsKey(username), func(ctx context.Context) ([]int64, error) {
		return s.compute(ctx, u.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: %s: %w", username, err)
	}
	return ids, nil
}

func (s *RecommendationService) compute(ctx context.Context, userID string) ([]int64, error) {
	catalog, err := s.movies.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.watchlists.AllEntries(ctx)
	if err != nil {
		return nil, err
	}

	mine := all[userID]
	if len(mine) == 0 {
		return topRated(catalog, fallbackCount), nil
	}

	owned := toSet(mine)
	neighbours := mostSimilar(userID, owned, all, similarUsers)

	recommended := make(map[int64]bool)
	for _, n := range neighbours {
		for _, id := range all[n] {
			if !owned[id] {
				recommended[id] = true
			}
		}
	}
	if len(recommended) > 0 {
		out := make([]int64, 0, len(recommended))
		for id := range recommended {
			out = append(out, id)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	}

	s.logger.Debug("no similar users, falling back to top genre", slog.String("userID", userID))
	return byTopGenre(catalog, mine, owned, fallbackCount), nil
}

// mostSimilar returns up to n user ids with positive cosine similarity to
// owned, most similar first. Equal scores are ordered by user id.
func mostSimilar(self string, owned map[int64]bool, all map[string][]int64, n int) []string {
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for other, movies := range all {
		if other == self || len(movies) == 0 {
			continue
		}
		if score := cosine(owned, toSet(movies)); score > 0 {
			candidates = append(candidates, scored{other, score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// cosine is |a∩b| / sqrt(|a|·|b|) for binary vectors.
func cosine(a, b map[int64]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for id := range a {
		if b[id] {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// topRated is the cold-start list: rating desc, then release year desc.
func topRated(catalog []model.Movie, n int) []int64 {
	sorted := make([]model.Movie, len(catalog))
	copy(sorted, catalog)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating > sorted[j].Rating
		}
		return sorted[i].ReleaseYear > sorted[j].ReleaseYear
	})

	out := []int64{}
	for _, m := range sorted {
		if len(out) == n {
			break
		}
		out = append(out, m.ID)
	}
	return out
}

func byTopGenre(catalog []model.Movie, mine []int64, owned map[int64]bool, n int) []int64 {
	byID := make(map[int64]model.Movie, len(catalog))
	for _, m := range catalog {
		byID[m.ID] = m
	}
	genres := make([]string, 0, len(mine))
	for _, id := range mine {
		genres = append(genres, byID[id].Genre)
	}
	top := TopGenre(genres)

	out := []int64{}
	if top == "" {
		return out
	}
	for _, m := range catalog {
		if len(out) == n {
			break
		}
		if owned[m.ID] {
			continue
		}
		for _, tag := range m.GenreTags() {
			if tag == top {
				out = append(out, m.ID)
				break
			}
		}
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
