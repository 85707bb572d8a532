package service

import (
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

// favoriteGenreCount is how many tags make up favorite_genres.
const favoriteGenreCount = 2

// DeriveTopGenres turns the genre strings of the submitted movies into the
// favorite_genres display value.
//
// Each string is split on commas and every tag is counted once per movie it
// appears in. The two most frequent tags win; on equal counts the tag seen
// first keeps its place. The result is joined with ", ", and is empty when
// no movie carries a tag.
//
//	DeriveTopGenres([]string{"Action,Drama", "Drama"}) == "Drama, Action"
//
// It is a pure function of its input so a save can be repeated with the same
// list and always produce the same value.
func DeriveTopGenres(genres []string) string {
	return strings.Join(rankGenres(genres, favoriteGenreCount), ", ")
}

// TopGenre returns the single most frequent tag, or "" for no tags.
func TopGenre(genres []string) string {
	top := rankGenres(genres, 1)
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

// rankGenres returns at most n tags ordered by count, then first appearance.
func rankGenres(genres []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, g := range genres {
		for _, tag := range model.SplitGenres(g) {
			if _, seen := counts[tag]; !seen {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	// Selection by repeated max keeps first-seen order on ties without a
	// stable sort and is plenty fast for a handful of tags.
	top := make([]string, 0, n)
	taken := make(map[string]bool, n)
	for len(top) < n {
		best := ""
		for _, tag := range order {
			if taken[tag] {
				continue
			}
			if best == "" || counts[tag] > counts[best] {
				best = tag
			}
		}
		if best == "" {
			break
		}
		taken[best] = true
		top = append(top, best)
	}
	return top
}

// dedupeEntries collapses repeated movie ids in a save. The flags of the
// last occurrence win and the entry keeps the position of the first, so the
// stored row count always equals the number of distinct ids.
func dedupeEntries(entries []model.WatchlistEntry) []model.WatchlistEntry {
	index := make(map[int64]int, len(entries))
	out := make([]model.WatchlistEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.MovieID]; ok {
			out[i] = e
			continue
		}
		index[e.MovieID] = len(out)
		out = append(out, e)
	}
	return out
}
