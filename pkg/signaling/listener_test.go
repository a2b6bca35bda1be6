package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlink/voxlink/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotGateway is a one-shot test gateway: it answers the subscribe
// request with a fixed sequence of snapshot frames
func snapshotGateway(t *testing.T, records []*SessionRecord) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var sub frame
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("Reading subscribe frame failed: %v", err)
			return
		}
		if sub.Type != frameSubscribe {
			t.Errorf("Expected subscribe frame, got %s", sub.Type)
			return
		}

		for _, record := range records {
			if record.ID != sub.SessionID {
				continue
			}
			data, _ := json.Marshal(record)
			if err := conn.WriteJSON(frame{Type: frameSnapshot, SessionID: record.ID, Data: data}); err != nil {
				return
			}
		}

		// Hold the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestListenerStreamsSnapshots(t *testing.T) {
	records := []*SessionRecord{
		{ID: "s1", Status: StatusRinging, Participants: []ParticipantDeclared{{ID: "alice"}}},
		{ID: "s1", Status: StatusActive, Participants: []ParticipantDeclared{{ID: "alice"}, {ID: "bob"}}},
	}
	server := snapshotGateway(t, records)
	defer server.Close()

	l := NewListener(wsURL(server), time.Second, logger.NewNopLogger())

	got := make(chan *SessionRecord, 4)
	cancel, err := l.Subscribe(context.Background(), "s1", func(record *SessionRecord) {
		got <- record
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	for i, want := range []SessionStatus{StatusRinging, StatusActive} {
		select {
		case record := <-got:
			if record.Status != want {
				t.Errorf("Snapshot %d: expected %s, got %s", i, want, record.Status)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for snapshot %d", i)
		}
	}
}

func TestListenerCancelIsIdempotent(t *testing.T) {
	server := snapshotGateway(t, nil)
	defer server.Close()

	l := NewListener(wsURL(server), time.Second, logger.NewNopLogger())

	cancel, err := l.Subscribe(context.Background(), "s1", func(*SessionRecord) {})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cancel()
	cancel()
	cancel()
}

func TestListenerDialFailure(t *testing.T) {
	l := NewListener("ws://127.0.0.1:1/ws", 100*time.Millisecond, logger.NewNopLogger())

	if _, err := l.Subscribe(context.Background(), "s1", func(*SessionRecord) {}); err == nil {
		t.Error("Expected dial failure")
	}
}
