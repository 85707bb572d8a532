package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikahagenbeek692/MovieManager/internal/events"
)

// Listener follows the device's event channel.
//
// Events carry no state, only a hint. On login or logout the session is
// re-derived from /me; on watchlist_saved the OnSaved handler refreshes
// whatever depends on the list. Each listener does this independently, so
// no two views ever share memory.
type Listener struct {
	url    string
	api    *APIClient
	dialer *websocket.Dialer
	logger *slog.Logger

	// OnEvent, when set, is called for every event after the session has
	// been refreshed.
	OnEvent func(ctx context.Context, e events.Event)
}

// NewListener builds the ws:// (or wss://) URL from the API client's base.
func NewListener(api *APIClient, logger *slog.Logger) (*Listener, error) {
	u, err := url.Parse(api.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("client: parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/events"
	u.RawQuery = url.Values{"channel": {api.session.ChannelID()}}.Encode()

	return &Listener{
		url:    u.String(),
		api:    api,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// Listen connects and handles events until ctx is cancelled (returns nil)
// or the connection fails.
//
// Pings from the server are answered by gorilla's default ping handler,
// which runs inside ReadJSON.
func (l *Listener) Listen(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("client: connecting to event stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	l.logger.Debug("listening for events", slog.String("url", l.url))

	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: reading event: %w", err)
		}
		l.handle(ctx, e)
	}
}

func (l *Listener) handle(ctx context.Context, e events.Event) {
	l.logger.Debug("event received", slog.String("type", string(e.Type)), slog.String("username", e.Username))

	switch e.Type {
	case events.TypeLogin, events.TypeLogout:
		err := l.api.RefreshSession(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// A 401 after a logout is the expected outcome; the session is
			// already cleared.
			l.logger.Debug("session refresh after event", slog.String("error", err.Error()))
		}
	}

	if l.OnEvent != nil {
		l.OnEvent(ctx, e)
	}
}
