package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeServer is a minimal in-process stand-in for the messaging bridge.
type bridgeServer struct {
	*httptest.Server
	sends chan frame
	names map[string]string
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	bs := &bridgeServer{
		sends: make(chan frame, 16),
		names: map[string]string{"Ops": "ops@g.us"},
	}
	upgrader := websocket.Upgrader{}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Greet every connection with one inbound message event.
		greeting, _ := json.Marshal(frame{
			Type: "message", ID: "msg-1", Chat: "sales@g.us",
			ChatName: "Sales", From: "a@s.net", Content: "hello", IsGroup: true,
		})
		_ = conn.WriteMessage(websocket.TextMessage, greeting)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			switch f.Type {
			case "send":
				bs.sends <- f
			case "resolve":
				id, found := bs.names[f.Name]
				reply, _ := json.Marshal(frame{
					Type: "resolve_result", ReqID: f.ReqID, Chat: id, Found: found,
				})
				_ = conn.WriteMessage(websocket.TextMessage, reply)
			}
		}
	}))
	t.Cleanup(bs.Close)
	return bs
}

func (bs *bridgeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(bs.URL, "http")
}

func startClient(t *testing.T, bs *bridgeServer, handler Handler) *Client {
	t.Helper()
	client, err := NewClient(bs.wsURL(), handler, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Stop)
	return client
}

func TestClientDispatchesMessageEvents(t *testing.T) {
	bs := newBridgeServer(t)

	events := make(chan Event, 1)
	startClient(t, bs, func(ctx context.Context, ev Event) { events <- ev })

	select {
	case ev := <-events:
		want := Event{
			MessageID: "msg-1", ChatID: "sales@g.us", ChatName: "Sales",
			SenderID: "a@s.net", Body: "hello", IsGroup: true,
		}
		if ev != want {
			t.Errorf("event = %+v, want %+v", ev, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event dispatched")
	}
}

func TestClientSendText(t *testing.T) {
	bs := newBridgeServer(t)
	client := startClient(t, bs, nil)

	if err := client.SendText(context.Background(), "ops@g.us", "forwarded text"); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-bs.sends:
		if f.To != "ops@g.us" || f.Content != "forwarded text" {
			t.Errorf("send frame = %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send frame never reached the bridge")
	}
}

func TestClientResolveName(t *testing.T) {
	bs := newBridgeServer(t)
	client := startClient(t, bs, nil)

	id, err := client.ResolveName(context.Background(), "Ops")
	if err != nil {
		t.Fatal(err)
	}
	if id != "ops@g.us" {
		t.Errorf("resolved id = %q, want ops@g.us", id)
	}

	if _, err := client.ResolveName(context.Background(), "Nowhere"); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("unknown name error = %v, want ErrNameNotFound", err)
	}
}

func TestClientNotConnected(t *testing.T) {
	client, err := NewClient("ws://127.0.0.1:1/ws", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Never started, so there is no connection to write to.
	if err := client.SendText(context.Background(), "x@g.us", "text"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText error = %v, want ErrNotConnected", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient("", nil, Options{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
