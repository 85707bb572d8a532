package events

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ===== HUB =====

func TestPublish_DeliversToChannelOnly(t *testing.T) {
	hub := NewHub()
	a1 := hub.Subscribe("device-a")
	a2 := hub.Subscribe("device-a")
	b := hub.Subscribe("device-b")
	defer a1.Close()
	defer a2.Close()
	defer b.Close()

	n := hub.Publish("device-a", Event{Type: TypeLogin, Username: "alice"})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}

	for _, s := range []*Subscription{a1, a2} {
		select {
		case e := <-s.C:
			if e.Type != TypeLogin || e.Username != "alice" {
				t.Errorf("event = %+v", e)
			}
			if e.At.IsZero() {
				t.Error("expected publish time to be filled in")
			}
		default:
			t.Fatal("subscriber on device-a received nothing")
		}
	}

	select {
	case e := <-b.C:
		t.Fatalf("device-b should not receive %+v", e)
	default:
	}
}

func TestPublish_EmptyChannelIgnored(t *testing.T) {
	hub := NewHub()
	if n := hub.Publish("", Event{Type: TypeLogout}); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestPublish_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe("c")

	for i := 0; i < subscriberBuffer; i++ {
		hub.Publish("c", Event{Type: TypeWatchlistSaved})
	}
	if n := hub.Publish("c", Event{Type: TypeWatchlistSaved}); n != 0 {
		t.Errorf("delivered = %d to a full subscriber, want 0", n)
	}
	if got := hub.Subscribers("c"); got != 0 {
		t.Errorf("subscribers = %d, want slow subscriber dropped", got)
	}

	// The buffered events are still readable, then the channel is closed.
	for i := 0; i < subscriberBuffer; i++ {
		<-slow.C
	}
	if _, ok := <-slow.C; ok {
		t.Error("expected channel to be closed")
	}

	slow.Close() // already dropped; must not panic
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub()
	s := hub.Subscribe("c")
	s.Close()
	s.Close()

	if got := hub.Subscribers("c"); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
	if n := hub.Publish("c", Event{Type: TypeLogin}); n != 0 {
		t.Errorf("delivered = %d after close, want 0", n)
	}
}

// ===== WEBSOCKET =====

func newWSServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	h := NewHandler(hub, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub, srv := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?channel=tab-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Subscribe happens right after the upgrade; wait for it.
	waitFor(t, "listener subscribed", func() bool { return hub.Subscribers("tab-1") == 1 })

	hub.Publish("tab-1", Event{Type: TypeLogout, Username: "bob"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeLogout || got.Username != "bob" {
		t.Errorf("event = %+v", got)
	}
}

func TestHandler_UnsubscribesOnDisconnect(t *testing.T) {
	hub, srv := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channel=tab-2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, "listener subscribed", func() bool { return hub.Subscribers("tab-2") == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "subscription removed", func() bool { return hub.Subscribers("tab-2") == 0 })
}

func TestHandler_RequiresChannel(t *testing.T) {
	_, srv := newWSServer(t)

	resp, err := http.Get(srv.URL + "/ws/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
