package client

import (
	"context"
	"errors"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

// State is where a Reconciliation stands.
type State int

const (
	// Unresolved: a fresh login found unsaved local edits. The user must
	// choose Restore or Discard before anything else happens.
	Unresolved State = iota
	// RestoredFromCache: the mirror was taken from local storage.
	RestoredFromCache
	// LoadedFromServer: the mirror holds the server's list.
	LoadedFromServer
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case RestoredFromCache:
		return "restored_from_cache"
	case LoadedFromServer:
		return "loaded_from_server"
	}
	return "unknown"
}

// ErrAlreadyResolved is returned by Restore and Discard once a choice has
// been made.
var ErrAlreadyResolved = errors.New("reconciliation already resolved")

// WatchlistFetcher reads the authoritative list. *APIClient implements it.
type WatchlistFetcher interface {
	GetWatchlist(ctx context.Context, username string) (*model.Watchlist, error)
}

// Reconciler decides, when a view starts, whether the local mirror or the
// server's list is shown.
//
// DECISION TABLE:
//
//	just logged in, mirror dirty and cached → Unresolved (ask the user)
//	just logged in, otherwise               → purge local state, fetch
//	not a fresh login, cache present        → use the cache
//	not a fresh login, no cache             → fetch
//
// "Just logged in" is the JustLoggedInKey marker that login sets. It is
// removed once the choice is made, so restarting the CLI later does not ask
// again.
type Reconciler struct {
	store Storage
	api   WatchlistFetcher
}

func NewReconciler(store Storage, api WatchlistFetcher) *Reconciler {
	return &Reconciler{store: store, api: api}
}

// Reconciliation is the outcome of Begin. While State is Unresolved, Mirror
// holds the local edits so they can be shown alongside the question.
type Reconciliation struct {
	State  State
	Mirror *Mirror

	r *Reconciler
}

// Begin loads the user's mirror and applies the decision table.
func (r *Reconciler) Begin(ctx context.Context, username string) (*Reconciliation, error) {
	m, err := LoadMirror(r.store, username)
	if err != nil {
		return nil, err
	}
	rc := &Reconciliation{Mirror: m, r: r}

	_, justLoggedIn, err := r.store.Get(JustLoggedInKey)
	if err != nil {
		return nil, err
	}

	switch {
	case justLoggedIn && m.Dirty() && m.HasCache():
		rc.State = Unresolved
		return rc, nil
	case justLoggedIn:
		if err := r.load(ctx, m); err != nil {
			return nil, err
		}
		rc.State = LoadedFromServer
		return rc, r.store.Remove(JustLoggedInKey)
	case m.HasCache():
		rc.State = RestoredFromCache
		return rc, nil
	default:
		if err := r.load(ctx, m); err != nil {
			return nil, err
		}
		rc.State = LoadedFromServer
		return rc, nil
	}
}

// Restore adopts the local mirror as it is: still dirty, undo stack intact.
func (rc *Reconciliation) Restore() error {
	if rc.State != Unresolved {
		return ErrAlreadyResolved
	}
	rc.State = RestoredFromCache
	return rc.r.store.Remove(JustLoggedInKey)
}

// Discard throws the local edits away and loads the server's list. On a
// fetch error the state stays Unresolved and nothing local is lost.
func (rc *Reconciliation) Discard(ctx context.Context) error {
	if rc.State != Unresolved {
		return ErrAlreadyResolved
	}
	if err := rc.r.load(ctx, rc.Mirror); err != nil {
		return err
	}
	rc.State = LoadedFromServer
	return rc.r.store.Remove(JustLoggedInKey)
}

// load fetches before touching storage, so a failed request leaves the
// local state as it was.
func (r *Reconciler) load(ctx context.Context, m *Mirror) error {
	wl, err := r.api.GetWatchlist(ctx, m.username)
	if err != nil {
		return err
	}
	return m.replace(wl)
}
