package client

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

var (
	// ErrAlreadyInList is returned by Add for a movie that is already on the
	// list. The mirror is left exactly as it was.
	ErrAlreadyInList = errors.New("movie is already in the watchlist")
	// ErrNotInList is returned by Remove and the toggles for a movie that is
	// not on the list.
	ErrNotInList = errors.New("movie is not in the watchlist")
)

// Mirror is the local copy of one user's watchlist.
//
// STATE:
//
//	items   → the list as the user currently sees it, in display order
//	undo    → full snapshots of items, most recent last
//	dirty   → items differ from what the server last confirmed
//	version → the server's watchlist version the mirror is based on
//
// Every mutation pushes a snapshot first, so Undo is the exact inverse of
// whichever mutation came last. Snapshots are whole lists rather than
// diffs: the lists are small and a snapshot cannot be replayed wrongly.
//
// A Mirror is not safe for concurrent use.
type Mirror struct {
	store    Storage
	username string

	items           []model.WatchlistItem
	undo            [][]model.WatchlistItem
	dirty           bool
	version         int64
	versionKnown    bool
	cached          bool
	recommendations []int64
}

// LoadMirror reads the user's mirror from store. Missing entries leave an
// empty, clean mirror.
func LoadMirror(store Storage, username string) (*Mirror, error) {
	m := &Mirror{store: store, username: username, items: []model.WatchlistItem{}}

	ok, err := getJSON(store, watchlistKey(username), &m.items)
	if err != nil {
		return nil, err
	}
	m.cached = ok

	if _, err := getJSON(store, undoStackKey(username), &m.undo); err != nil {
		return nil, err
	}
	if _, err := getJSON(store, recommendationsKey(username), &m.recommendations); err != nil {
		return nil, err
	}

	raw, ok, err := store.Get(unsavedKey(username))
	if err != nil {
		return nil, err
	}
	m.dirty = ok && raw == "true"

	raw, ok, err = store.Get(versionKey(username))
	if err != nil {
		return nil, err
	}
	if ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("client: decoding %s: %w", versionKey(username), err)
		}
		m.version, m.versionKnown = v, true
	}

	return m, nil
}

func (m *Mirror) Username() string { return m.username }

// Items returns a copy of the current list.
func (m *Mirror) Items() []model.WatchlistItem { return cloneItems(m.items) }

// Dirty reports whether there are unsaved changes.
func (m *Mirror) Dirty() bool { return m.dirty }

// UndoDepth is how many mutations Undo can still revert.
func (m *Mirror) UndoDepth() int { return len(m.undo) }

// Version is the server version the mirror is based on, and whether one is
// known at all (a mirror built purely from local edits has none).
func (m *Mirror) Version() (int64, bool) { return m.version, m.versionKnown }

// HasCache reports whether a cached list was found in storage.
func (m *Mirror) HasCache() bool { return m.cached }

// Entries is the save payload: the list reduced to {id, watched, favorite}.
func (m *Mirror) Entries() []model.WatchlistEntry {
	entries := make([]model.WatchlistEntry, len(m.items))
	for i, item := range m.items {
		entries[i] = item.Entry()
	}
	return entries
}

// Recommendations returns the cached recommendation ids.
func (m *Mirror) Recommendations() []int64 { return m.recommendations }

// SetRecommendations caches ids for the user.
func (m *Mirror) SetRecommendations(ids []int64) error {
	m.recommendations = ids
	return setJSON(m.store, recommendationsKey(m.username), ids)
}

// =============================================================================
// Mutations
// =============================================================================

// Add appends movie unwatched and not favorite.
//
// DUPLICATE GUARD:
// The snapshot is pushed before the duplicate check, like every other
// mutation. When the movie is already there, the snapshot is popped again
// and the dirty flag put back, so the attempt leaves no trace: same list,
// same undo depth, same flag.
func (m *Mirror) Add(movie model.Movie) error {
	wasDirty := m.dirty
	m.pushUndo()

	if m.indexOf(movie.ID) >= 0 {
		m.items = m.popUndo()
		m.dirty = wasDirty
		return ErrAlreadyInList
	}

	m.items = append(m.items, model.WatchlistItem{Movie: movie})
	m.dirty = true
	return m.persist()
}

// Remove drops the movie from the list.
func (m *Mirror) Remove(movieID int64) error {
	return m.mutate(movieID, func(i int) {
		m.items = append(m.items[:i], m.items[i+1:]...)
	})
}

// ToggleWatched flips the watched flag of the movie.
func (m *Mirror) ToggleWatched(movieID int64) error {
	return m.mutate(movieID, func(i int) {
		m.items[i].Watched = !m.items[i].Watched
	})
}

// ToggleFavorite flips the favorite flag of the movie.
func (m *Mirror) ToggleFavorite(movieID int64) error {
	return m.mutate(movieID, func(i int) {
		m.items[i].Favorite = !m.items[i].Favorite
	})
}

// mutate applies fn to the index of movieID. A missing movie changes
// nothing, not even the undo stack.
func (m *Mirror) mutate(movieID int64, fn func(i int)) error {
	i := m.indexOf(movieID)
	if i < 0 {
		return ErrNotInList
	}
	m.pushUndo()
	fn(i)
	m.dirty = true
	return m.persist()
}

// Undo reverts the most recent mutation. It reports false when there is
// nothing to undo. Emptying the stack means the list is back to the last
// saved or loaded state, so the dirty flag is cleared.
func (m *Mirror) Undo() (bool, error) {
	if len(m.undo) == 0 {
		return false, nil
	}
	m.items = m.popUndo()
	if len(m.undo) == 0 {
		m.dirty = false
	}
	return true, m.persist()
}

// =============================================================================
// Server synchronisation
// =============================================================================

// markSaved records a successful save of the current list.
func (m *Mirror) markSaved(version int64) error {
	m.undo = nil
	m.dirty = false
	m.version, m.versionKnown = version, true
	return m.persist()
}

// replace overwrites the mirror with the server's list and purges every
// stale local entry first, so afterwards storage holds exactly what a fresh
// fetch would produce.
func (m *Mirror) replace(wl *model.Watchlist) error {
	if err := ClearUserCache(m.store, m.username); err != nil {
		return err
	}
	m.items = cloneItems(wl.Items)
	m.undo = nil
	m.dirty = false
	m.recommendations = nil
	m.version, m.versionKnown = wl.Version, true
	if err := m.persist(); err != nil {
		return err
	}
	m.cached = true
	return nil
}

// persist writes the whole mirror to storage.
func (m *Mirror) persist() error {
	undo := m.undo
	if undo == nil {
		undo = [][]model.WatchlistItem{}
	}
	if err := setJSON(m.store, watchlistKey(m.username), m.items); err != nil {
		return err
	}
	if err := setJSON(m.store, undoStackKey(m.username), undo); err != nil {
		return err
	}
	if err := m.store.Set(unsavedKey(m.username), strconv.FormatBool(m.dirty)); err != nil {
		return err
	}
	if m.versionKnown {
		if err := m.store.Set(versionKey(m.username), strconv.FormatInt(m.version, 10)); err != nil {
			return err
		}
	}
	m.cached = true
	return nil
}

func (m *Mirror) pushUndo() {
	m.undo = append(m.undo, cloneItems(m.items))
}

func (m *Mirror) popUndo() []model.WatchlistItem {
	last := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	return last
}

func (m *Mirror) indexOf(movieID int64) int {
	for i, item := range m.items {
		if item.ID == movieID {
			return i
		}
	}
	return -1
}

// cloneItems copies the slice. WatchlistItem holds only values, so a
// shallow copy is a full one.
func cloneItems(items []model.WatchlistItem) []model.WatchlistItem {
	out := make([]model.WatchlistItem, len(items))
	copy(out, items)
	return out
}
