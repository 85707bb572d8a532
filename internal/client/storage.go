// Package client is the client tier of the watchlist app: a local mirror of
// the user's list with an undo stack, a throttled save, the login-time
// reconciliation between mirror and server, and the HTTP and event-stream
// clients that talk to the API.
//
// LOCAL STATE IS NEVER AUTHORITATIVE:
// Everything in Storage exists for session continuity only. A crash or a
// closed terminal before saving must not lose edits, so the mirror writes
// itself out on every change. The server copy always wins unless the user
// explicitly restores the local one (see Reconciler).
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Storage is a string key/value store, the equivalent of a browser's
// localStorage.
type Storage interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// Keys. Per-user entries are suffixed with the username so two accounts
// used from the same machine never see each other's pending edits.
const (
	JustLoggedInKey = "just_logged_in"
	sessionKey      = "session"
	cookiesKey      = "cookies"
)

func watchlistKey(username string) string       { return "watchlist_" + username }
func unsavedKey(username string) string         { return "hasUnsavedChanges_" + username }
func undoStackKey(username string) string       { return "undoStack_" + username }
func recommendationsKey(username string) string { return "recommendations_" + username }
func versionKey(username string) string         { return "watchlistVersion_" + username }
func lastSaveKey(username string) string        { return "lastSave_" + username }

// userKeys lists every per-user entry, for purging.
func userKeys(username string) []string {
	return []string{
		watchlistKey(username),
		unsavedKey(username),
		undoStackKey(username),
		recommendationsKey(username),
		versionKey(username),
		lastSaveKey(username),
	}
}

// ClearUserCache removes everything stored for username. Logout calls it so
// the next person at the keyboard starts clean.
func ClearUserCache(store Storage, username string) error {
	var errs []error
	for _, key := range userKeys(username) {
		if err := store.Remove(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getJSON decodes the value at key into dst. It reports false, without
// touching dst, when the key is missing.
func getJSON(store Storage, key string, dst any) (bool, error) {
	raw, ok, err := store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("client: decoding %s: %w", key, err)
	}
	return true, nil
}

func setJSON(store Storage, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("client: encoding %s: %w", key, err)
	}
	return store.Set(key, string(buf))
}

// =============================================================================
// MemoryStorage
// =============================================================================

// MemoryStorage keeps values in a map. Useful for tests and for a client
// that should forget everything on exit.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// =============================================================================
// FileStorage
// =============================================================================

// FileStorage keeps one file per key in a directory.
//
// ATOMIC WRITES:
// Set writes to a temp file in the same directory and renames it over the
// target. A crash mid-write leaves either the old value or the new one,
// never a truncated file the mirror would fail to decode.
type FileStorage struct {
	dir string
}

// DefaultDir is ~/.moviemanager.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("client: locating home directory: %w", err)
	}
	return filepath.Join(home, ".moviemanager"), nil
}

// NewFileStorage creates dir if needed. The directory holds the session
// cookie, so it is private to the user.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("client: creating storage dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// path escapes key so any username is a safe file name.
func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

func (s *FileStorage) Get(key string) (string, bool, error) {
	buf, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("client: reading %s: %w", key, err)
	}
	return string(buf), true, nil
}

func (s *FileStorage) Set(key, value string) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("client: writing %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("client: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("client: writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("client: writing %s: %w", key, err)
	}
	return nil
}

func (s *FileStorage) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("client: removing %s: %w", key, err)
	}
	return nil
}
