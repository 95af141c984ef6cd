package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/facewatch/internal/log"
	"github.com/teslashibe/facewatch/pkg/monitor"
	"github.com/teslashibe/facewatch/pkg/presence"
)

func TestDescribe(t *testing.T) {
	base := monitor.Snapshot{Instance: "a", Availability: monitor.AvailabilityMonitoring, Presence: presence.Visible}

	if _, ok := describe(&base, base); ok {
		t.Error("identical snapshot should print nothing")
	}

	frames := base
	frames.Frames = 10
	if _, ok := describe(&base, frames); ok {
		t.Error("frame counter changes should print nothing")
	}

	gone := base
	gone.Presence = presence.NotVisible
	line, ok := describe(&base, gone)
	if !ok || !strings.Contains(line, "NOT_VISIBLE") || !strings.Contains(line, "since") {
		t.Errorf("line = %q", line)
	}

	denied := monitor.Snapshot{Instance: "b", Availability: monitor.AvailabilityCameraUnavailable, LastError: "permission denied"}
	line, ok = describe(nil, denied)
	if !ok || !strings.Contains(line, "camera_unavailable: permission denied") {
		t.Errorf("line = %q", line)
	}
}

func TestFollow(t *testing.T) {
	snaps := []monitor.Snapshot{
		{Instance: "a", Availability: monitor.AvailabilityLoading},
		{Instance: "a", Availability: monitor.AvailabilityMonitoring, Presence: presence.Visible},
		{Instance: "a", Availability: monitor.AvailabilityMonitoring, Presence: presence.Visible, Frames: 5},
		{Instance: "a", Availability: monitor.AvailabilityMonitoring, Presence: presence.NotVisible},
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, s := range snaps {
			data, _ := json.Marshal(s)
			conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	var out bytes.Buffer
	tl := &tailer{out: &out, logger: log.Discard()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tl.follow(ctx, wsURL(srv)); err == nil {
		t.Error("follow should report the closed connection")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.HasSuffix(lines[0], "loading") || !strings.HasSuffix(lines[1], "VISIBLE") || !strings.Contains(lines[2], "NOT_VISIBLE") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
}

// followWithin runs follow and fails the test if it has not returned,
// watcher included, within d.
func followWithin(t *testing.T, tl *tailer, ctx context.Context, url string, d time.Duration) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- tl.follow(ctx, url) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(d):
		t.Fatal("follow did not return")
		return nil
	}
}

func TestFollowReconnectsWithoutLeaking(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := json.Marshal(monitor.Snapshot{Instance: "a", Availability: monitor.AvailabilityLoading})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	}))
	defer srv.Close()

	tl := &tailer{out: &bytes.Buffer{}, logger: log.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ctx stays live across every reconnect, so each connection's watcher
	// has to exit with its connection.
	for i := 0; i < 5; i++ {
		if err := followWithin(t, tl, ctx, wsURL(srv), time.Second); err == nil {
			t.Fatalf("connection %d: follow should report the closed connection", i)
		}
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	closed := make(chan int, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closed <- ce.Code
				}
				return
			}
		}
	}))
	defer srv.Close()

	tl := &tailer{out: &bytes.Buffer{}, logger: log.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := followWithin(t, tl, ctx, wsURL(srv), 2*time.Second); err == nil {
		t.Error("follow should report the canceled connection")
	}
	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(time.Second):
		t.Error("server never saw a close frame")
	}
}
