package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewHub(log)
}

func TestHubBroadcast_ReachesOnlyChannelSubscribers(t *testing.T) {
	hub := newHub(t)
	a := hub.Subscribe("session-a")
	b := hub.Subscribe("session-b")
	defer hub.CloseClient(a)
	defer hub.CloseClient(b)

	hub.Broadcast(Event{Channel: "session-a", Event: EventProgress, Data: map[string]any{"progress_percent": 10}})

	select {
	case msg := <-a.Outbound:
		if msg.Event != EventProgress {
			t.Fatalf("unexpected event %q", msg.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a never received the event")
	}
	select {
	case msg := <-b.Outbound:
		t.Fatalf("subscriber b received stray event %q", msg.Event)
	default:
	}
}

func TestHubBroadcast_LateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := newHub(t)
	hub.Broadcast(Event{Channel: "session-a", Event: EventCompleted})

	client := hub.Subscribe("session-a")
	defer hub.CloseClient(client)
	select {
	case msg := <-client.Outbound:
		t.Fatalf("late subscriber received replayed event %q", msg.Event)
	default:
	}
}

func TestHubBroadcast_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := newHub(t)
	client := hub.Subscribe("session-a")
	defer hub.CloseClient(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(client.Outbound)+5; i++ {
			hub.Broadcast(Event{Channel: "session-a", Event: EventProgress})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full subscriber buffer")
	}
}

// streamLines reads SSE frames off a live response until the deadline,
// returning every non-empty line seen.
func streamLines(t *testing.T, resp *http.Response, want int, deadline time.Duration) []string {
	t.Helper()
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if text := scanner.Text(); text != "" {
				lines <- text
			}
		}
		close(lines)
	}()

	var out []string
	timeout := time.After(deadline)
	for len(out) < want {
		select {
		case line, open := <-lines:
			if !open {
				return out
			}
			out = append(out, line)
		case <-timeout:
			return out
		}
	}
	return out
}

func TestHubServeHTTP_IdleStreamEmitsKeepalive(t *testing.T) {
	hub := newHub(t)
	hub.keepalive = 50 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := hub.Subscribe("session-a")
		defer hub.CloseClient(client)
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	// An idle subscription must see the retry hint and then at least one
	// comment frame within slightly over the configured interval.
	lines := streamLines(t, resp, 2, 2*hub.keepalive)
	if len(lines) < 2 {
		t.Fatalf("expected retry hint and a keepalive, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "retry:") {
		t.Fatalf("first frame is not the retry hint: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], ":") {
		t.Fatalf("idle stream never emitted a keepalive comment: %q", lines[1])
	}
}

func TestHubServeHTTP_BroadcastArrivesAsEventFrame(t *testing.T) {
	hub := newHub(t)
	hub.keepalive = time.Hour

	subscribed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := hub.Subscribe("session-a")
		defer hub.CloseClient(client)
		close(subscribed)
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	<-subscribed
	hub.Broadcast(Event{Channel: "session-a", Event: EventProgress, Data: map[string]any{"progress_percent": 40}})

	lines := streamLines(t, resp, 3, 2*time.Second)
	if len(lines) < 3 {
		t.Fatalf("expected retry hint plus an event frame, got %q", lines)
	}
	if lines[1] != "event: "+EventProgress {
		t.Fatalf("unexpected event line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "data: ") || !strings.Contains(lines[2], "progress_percent") {
		t.Fatalf("unexpected data line %q", lines[2])
	}
}

func TestHubCloseClient_RemovesSubscription(t *testing.T) {
	hub := newHub(t)
	client := hub.Subscribe("session-a")
	hub.CloseClient(client)

	// Must not panic or deliver after close.
	hub.Broadcast(Event{Channel: "session-a", Event: EventProgress})
	if _, open := <-client.Outbound; open {
		t.Fatal("outbound channel still open after close")
	}
}
