package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikahagenbeek692/MovieManager/internal/events"
)

func TestListener_ReceivesChannelEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub()

	mux := http.NewServeMux()
	mux.Handle("/ws/events", events.NewHandler(hub, "", logger))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	store := NewMemoryStorage()
	session, err := LoadSession(store)
	require.NoError(t, err)
	api, err := NewAPIClient(ts.URL, session, store)
	require.NoError(t, err)

	l, err := NewListener(api, logger)
	require.NoError(t, err)

	received := make(chan events.Event, 4)
	l.OnEvent = func(_ context.Context, e events.Event) { received <- e }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx) }()

	require.Eventually(t, func() bool {
		return hub.Subscribers(session.ChannelID()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish("another-device", events.Event{Type: events.TypeWatchlistSaved, Username: "bob"})
	hub.Publish(session.ChannelID(), events.Event{Type: events.TypeWatchlistSaved, Username: "alice"})
	hub.Publish(session.ChannelID(), events.Event{Type: events.TypeLogout})

	for _, want := range []events.Type{events.TypeWatchlistSaved, events.TypeLogout} {
		select {
		case e := <-received:
			assert.Equal(t, want, e.Type)
			if want == events.TypeWatchlistSaved {
				assert.Equal(t, "alice", e.Username)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event received", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestNewListener_URL(t *testing.T) {
	store := NewMemoryStorage()
	session, err := LoadSession(store)
	require.NoError(t, err)

	for base, want := range map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/ws/events?channel=",
		"https://movies.example/": "wss://movies.example/ws/events?channel=",
	} {
		api, err := NewAPIClient(base, session, store)
		require.NoError(t, err)
		l, err := NewListener(api, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, want+session.ChannelID(), l.url)
	}
}
