package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		hub.ServeWS(w, r, Subscriber{
			UserID:           userID,
			OrganizationCode: r.URL.Query().Get("org"),
			Reviewer:         r.URL.Query().Get("reviewer") == "1",
		})
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) (clientMessage, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return clientMessage{}, false
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message %s: %v", data, err)
	}
	return msg, true
}

func TestHubDeliversToAudience(t *testing.T) {
	hub, srv := startHub(t)

	student := dial(t, srv, "user=1&org=AB12")
	other := dial(t, srv, "user=2&org=ZZ99")
	waitForClients(t, hub, 2)

	ctx := context.Background()
	hub.Publish(ctx, NewEvent(EventSubmissionUpdated, map[string]string{"status": "approved"}).ForUser(1))

	msg, ok := readMessage(t, student)
	if !ok {
		t.Fatal("student did not receive its event")
	}
	if msg.Type != EventSubmissionUpdated {
		t.Errorf("Type = %q, want %q", msg.Type, EventSubmissionUpdated)
	}
	if !strings.Contains(string(msg.Data), "approved") {
		t.Errorf("Data = %s", msg.Data)
	}
	if _, ok := readMessage(t, other); ok {
		t.Error("other user received an event addressed to user 1")
	}
}

func TestHubOrganizationAndBroadcast(t *testing.T) {
	hub, srv := startHub(t)

	reviewer := dial(t, srv, "user=1&org=AB12&reviewer=1")
	classmate := dial(t, srv, "user=3&org=AB12")
	outsider := dial(t, srv, "user=2")
	waitForClients(t, hub, 3)

	ctx := context.Background()
	hub.Publish(ctx, NewEvent(EventLeaderboardUpdated, nil))
	for name, conn := range map[string]*websocket.Conn{"reviewer": reviewer, "classmate": classmate, "outsider": outsider} {
		if msg, ok := readMessage(t, conn); !ok || msg.Type != EventLeaderboardUpdated {
			t.Errorf("%s did not receive broadcast", name)
		}
	}

	hub.Publish(ctx, NewEvent(EventSubmissionUpdated, map[string]string{"reviewer_notes": "private"}).ForOrganization("AB12"))
	if msg, ok := readMessage(t, reviewer); !ok || msg.Type != EventSubmissionUpdated {
		t.Error("organization reviewer did not receive organization event")
	}
	for name, conn := range map[string]*websocket.Conn{"classmate": classmate, "outsider": outsider} {
		if msg, ok := readMessage(t, conn); ok {
			t.Errorf("%s received organization event %s", name, msg.Data)
		}
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "user=1")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestEventAudience(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		sub  Subscriber
		want bool
	}{
		{name: "broadcast", evt: Event{Type: "x"}, sub: Subscriber{UserID: 5}, want: true},
		{name: "matching user", evt: Event{UserID: 5}, sub: Subscriber{UserID: 5}, want: true},
		{name: "other user", evt: Event{UserID: 6}, sub: Subscriber{UserID: 5}, want: false},
		{name: "reviewer of organization", evt: Event{OrganizationCode: "AB12"}, sub: Subscriber{UserID: 5, OrganizationCode: "AB12", Reviewer: true}, want: true},
		{name: "reviewer of other organization", evt: Event{OrganizationCode: "AB12"}, sub: Subscriber{UserID: 5, OrganizationCode: "ZZ99", Reviewer: true}, want: false},
		{name: "student of organization", evt: Event{OrganizationCode: "AB12"}, sub: Subscriber{UserID: 5, OrganizationCode: "AB12"}, want: false},
		{name: "owner inside organization", evt: Event{UserID: 5, OrganizationCode: "AB12"}, sub: Subscriber{UserID: 5, OrganizationCode: "AB12"}, want: true},
		{name: "unaffiliated subscriber", evt: Event{OrganizationCode: "AB12"}, sub: Subscriber{UserID: 5}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{subscriber: tt.sub}
			if got := c.wants(tt.evt); got != tt.want {
				t.Errorf("wants() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedisBrokerForwardsToHub(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	hub, srv := startHub(t)
	conn := dial(t, srv, "user=9")
	waitForClients(t, hub, 1)

	broker := NewRedisBroker(client, "ecoquest:test:"+strconv.FormatInt(time.Now().UnixNano(), 10))
	go broker.Forward(ctx, hub)

	received := make(chan clientMessage, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(data, &msg) == nil {
			received <- msg
		}
	}()

	// the subscription is asynchronous; publish until the event arrives
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(3 * time.Second)
	for {
		if err := broker.Publish(ctx, NewEvent(EventLevelUp, map[string]int{"level": 2}).ForUser(9)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case msg := <-received:
			if msg.Type != EventLevelUp {
				t.Errorf("Type = %q, want %q", msg.Type, EventLevelUp)
			}
			return
		case <-timeout:
			t.Fatal("event never arrived through redis")
		case <-ticker.C:
		}
	}
}
