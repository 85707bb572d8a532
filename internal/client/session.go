package client

import (
	"sync"

	"github.com/google/uuid"
)

// Session is who the client is logged in as, and the CSRF token that goes
// with that login.
//
// WHY AN EXPLICIT OBJECT?
// Identity is passed to whatever needs it instead of living in a global.
// Its lifecycle is visible in one place:
//
//	login / refresh → Set
//	logout / 401    → Clear
//
// The channel id identifies this device on the event stream. It is created
// once and survives logout, so every terminal on the machine keeps hearing
// the others.
type Session struct {
	mu        sync.RWMutex
	store     Storage
	Username  string `json:"username"`
	CSRFToken string `json:"csrfToken"`
	Channel   string `json:"channel"`
}

// LoadSession reads the saved session, creating a channel id on first use.
func LoadSession(store Storage) (*Session, error) {
	s := &Session{store: store}
	if _, err := getJSON(store, sessionKey, s); err != nil {
		return nil, err
	}
	if s.Channel == "" {
		s.Channel = uuid.NewString()
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Current returns the username and CSRF token.
func (s *Session) Current() (username, csrfToken string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username, s.CSRFToken
}

// LoggedIn reports whether a user is set.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username != ""
}

// ChannelID returns the device's event channel.
func (s *Session) ChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Channel
}

// Set records a login or refresh. An empty csrfToken keeps the current one.
func (s *Session) Set(username, csrfToken string) error {
	s.mu.Lock()
	s.Username = username
	if csrfToken != "" {
		s.CSRFToken = csrfToken
	}
	s.mu.Unlock()
	return s.save()
}

// Clear forgets the user but keeps the channel.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.Username, s.CSRFToken = "", ""
	s.mu.Unlock()
	return s.save()
}

func (s *Session) save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return setJSON(s.store, sessionKey, struct {
		Username  string `json:"username"`
		CSRFToken string `json:"csrfToken"`
		Channel   string `json:"channel"`
	}{s.Username, s.CSRFToken, s.Channel})
}
