package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

// SaveCooldown is the minimum time between the starts of two successful
// saves.
const SaveCooldown = 10 * time.Second

// ErrSaveThrottled matches every *ThrottledError.
var ErrSaveThrottled = errors.New("save throttled")

// ThrottledError rejects a save attempted inside the cooldown.
type ThrottledError struct {
	Remaining time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("Please wait %d seconds before saving again.", apperror.RetryAfterSeconds(e.Remaining))
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrSaveThrottled
}

// WatchlistSaver submits a replace-all save. *APIClient implements it.
type WatchlistSaver interface {
	SaveWatchlist(ctx context.Context, username string, entries []model.WatchlistEntry, baseVersion *int64) (*model.SaveResult, error)
}

// SavedFunc is notified after every successful save.
type SavedFunc func(username string, res *model.SaveResult)

// Saver sends the mirror to the server.
//
// FLOW:
//  1. Inside the cooldown since the last successful save started? Reject
//     with *ThrottledError and make no request at all.
//  2. Submit the whole list, with the mirror's version as base version
//     when one is known.
//  3. On success: clear the dirty flag and the undo stack, persist, then
//     run the OnSaved hooks (recommendations are derived from the list and
//     must be refetched).
//  4. On failure: leave the mirror dirty so the user can retry.
//
// The start time of the last successful save is kept in Storage, so the
// cooldown holds across CLI invocations too.
type Saver struct {
	api   WatchlistSaver
	store Storage
	now   func() time.Time

	mu    sync.Mutex
	hooks []SavedFunc
}

func NewSaver(api WatchlistSaver, store Storage) *Saver {
	return &Saver{api: api, store: store, now: time.Now}
}

// OnSaved registers fn to run after each successful save.
func (s *Saver) OnSaved(fn SavedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Save submits m. See the type documentation for the flow.
func (s *Saver) Save(ctx context.Context, m *Mirror) (*model.SaveResult, error) {
	start := s.now()

	last, err := s.lastSave(m.username)
	if err != nil {
		return nil, err
	}
	if !last.IsZero() {
		if elapsed := start.Sub(last); elapsed >= 0 && elapsed < SaveCooldown {
			return nil, &ThrottledError{Remaining: SaveCooldown - elapsed}
		}
	}

	var base *int64
	if v, ok := m.Version(); ok {
		base = &v
	}

	res, err := s.api.SaveWatchlist(ctx, m.username, m.Entries(), base)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(lastSaveKey(m.username), start.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if err := m.markSaved(res.Version); err != nil {
		return nil, err
	}

	s.mu.Lock()
	hooks := append([]SavedFunc(nil), s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(m.username, res)
	}
	return res, nil
}

func (s *Saver) lastSave(username string) (time.Time, error) {
	raw, ok, err := s.store.Get(lastSaveKey(username))
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("client: decoding %s: %w", lastSaveKey(username), err)
	}
	return t, nil
}
