package model

import "strings"

// Movie is read-only catalog data. Genre is a comma-joined tag list such as
// "Action, Drama".
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseYear int     `json:"releaseYear"`
	Genre       string  `json:"genre"`
	Director    string  `json:"director"`
	Cast        string  `json:"cast"`
	Duration    int     `json:"duration"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
}

// GenreTags splits Genre on commas, trimming whitespace and dropping empty tags.
func (m Movie) GenreTags() []string {
	return SplitGenres(m.Genre)
}

// SplitGenres splits a comma-joined genre list.
func SplitGenres(genre string) []string {
	parts := strings.Split(genre, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
