// facewatch-tail follows a facewatch daemon's status stream and prints
// each availability or presence change, one line per change.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/facewatch/internal/config"
	"github.com/teslashibe/facewatch/internal/log"
	"github.com/teslashibe/facewatch/pkg/monitor"
)

func main() {
	addr := flag.String("addr", config.DefaultListen, "facewatch overlay address")
	raw := flag.Bool("json", false, "Print every snapshot as JSON")
	retry := flag.Duration("retry", 2*time.Second, "Reconnect delay")
	flag.Parse()

	log.Init("info", "")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/status"}
	t := &tailer{out: os.Stdout, raw: *raw, logger: log.L()}

	for {
		err := t.follow(ctx, u.String())
		if ctx.Err() != nil {
			return
		}
		log.Warn("status stream lost, reconnecting", "error", err, "retry", *retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(*retry):
		}
	}
}

type tailer struct {
	out    io.Writer
	raw    bool
	logger *slog.Logger
	prev   *monitor.Snapshot
}

// follow reads snapshots until the connection drops or ctx is done.
func (t *tailer) follow(ctx context.Context, wsURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()
	t.logger.Debug("connected", "url", wsURL)

	// The watcher lives exactly as long as this connection.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var snap monitor.Snapshot
		if err := json.Unmarshal(message, &snap); err != nil {
			t.logger.Warn("bad snapshot", "error", err)
			continue
		}
		t.handle(snap, message)
	}
}

func (t *tailer) handle(snap monitor.Snapshot, raw []byte) {
	if t.raw {
		fmt.Fprintln(t.out, string(raw))
		return
	}
	if line, ok := describe(t.prev, snap); ok {
		fmt.Fprintln(t.out, line)
	}
	t.prev = &snap
}

// describe renders the change from prev to cur. ok is false when nothing
// worth printing changed.
func describe(prev *monitor.Snapshot, cur monitor.Snapshot) (line string, ok bool) {
	if prev != nil && prev.Instance == cur.Instance &&
		prev.Availability == cur.Availability && prev.Presence == cur.Presence {
		return "", false
	}

	at := cur.UpdatedAt.Local().Format("15:04:05")
	switch {
	case cur.Availability.Monitoring():
		line = fmt.Sprintf("%s %s", at, cur.Presence)
		if cur.Alerting() {
			line += fmt.Sprintf(" (since %s)", cur.Since.Local().Format("15:04:05"))
		}
	case cur.LastError != "":
		line = fmt.Sprintf("%s %s: %s", at, cur.Availability, cur.LastError)
	default:
		line = fmt.Sprintf("%s %s", at, cur.Availability)
	}
	return line, true
}
