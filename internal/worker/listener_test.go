package worker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeStream is a websocket endpoint that hands each accepted connection
// to the test.
type fakeStream struct {
	srv       *httptest.Server
	mu        sync.Mutex
	clientIDs []string
	conns     chan net.Conn
}

func newFakeStream(t *testing.T) *fakeStream {
	t.Helper()
	fs := &fakeStream{conns: make(chan net.Conn, 4)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.clientIDs = append(fs.clientIDs, r.URL.Query().Get("clientId"))
		fs.mu.Unlock()

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeStream) endpoint() string {
	return fs.srv.Listener.Addr().String()
}

func (fs *fakeStream) seenClientIDs() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.clientIDs...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListener_StatusEventUpdatesGauge(t *testing.T) {
	fs := newFakeStream(t)
	pool := NewPool([]string{fs.endpoint()}, time.Second)
	w := pool.Workers()[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(w, func(context.Context, string) {}, 10*time.Millisecond, testLogger())
	go l.Run(ctx)

	conn := <-fs.conns
	defer conn.Close()

	err := wsutil.WriteServerText(conn, []byte(`{"type":"status","data":{"status":{"exec_info":{"queue_remaining":7}}}}`))
	if err != nil {
		t.Fatalf("write status event: %v", err)
	}

	waitFor(t, func() bool { return w.QueueRemaining() == 7 }, "gauge update")
}

func TestListener_CompletionEventTriggersHandler(t *testing.T) {
	fs := newFakeStream(t)
	pool := NewPool([]string{fs.endpoint()}, time.Second)
	w := pool.Workers()[0]

	completed := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(w, func(_ context.Context, id string) { completed <- id }, 10*time.Millisecond, testLogger())
	go l.Run(ctx)

	conn := <-fs.conns
	defer conn.Close()

	// A node still executing: not a completion.
	_ = wsutil.WriteServerText(conn, []byte(`{"type":"executing","data":{"node":"13","prompt_id":"task-1"}}`))
	// Unrecognized event kinds are ignored.
	_ = wsutil.WriteServerText(conn, []byte(`{"type":"progress","data":{"value":3}}`))
	// Malformed events must not kill the listener.
	_ = wsutil.WriteServerText(conn, []byte(`not json`))
	// Null node: the job finished.
	_ = wsutil.WriteServerText(conn, []byte(`{"type":"executing","data":{"node":null,"prompt_id":"task-1"}}`))

	select {
	case id := <-completed:
		if id != "task-1" {
			t.Fatalf("expected completion for task-1, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for completion handler")
	}

	select {
	case id := <-completed:
		t.Fatalf("unexpected extra completion %q", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListener_ReconnectsWithSameClientID(t *testing.T) {
	fs := newFakeStream(t)
	pool := NewPool([]string{fs.endpoint()}, time.Second)
	w := pool.Workers()[0]

	completed := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(w, func(_ context.Context, id string) { completed <- id }, 20*time.Millisecond, testLogger())
	go l.Run(ctx)

	// First connection: deliver one completion, then drop the stream.
	conn := <-fs.conns
	_ = wsutil.WriteServerText(conn, []byte(`{"type":"executing","data":{"node":null,"prompt_id":"task-1"}}`))
	if id := <-completed; id != "task-1" {
		t.Fatalf("expected task-1, got %q", id)
	}
	_ = conn.Close()

	// The listener reconnects after its backoff with the same client id.
	var conn2 net.Conn
	select {
	case conn2 = <-fs.conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not reconnect")
	}
	defer conn2.Close()

	ids := fs.seenClientIDs()
	if len(ids) < 2 {
		t.Fatalf("expected at least 2 connections, got %d", len(ids))
	}
	if ids[0] != w.ClientID || ids[1] != w.ClientID {
		t.Fatalf("expected stable client id %q across reconnects, got %v", w.ClientID, ids)
	}

	// Already-processed events are not redelivered; only new ones arrive.
	_ = wsutil.WriteServerText(conn2, []byte(`{"type":"executing","data":{"node":null,"prompt_id":"task-2"}}`))
	if id := <-completed; id != "task-2" {
		t.Fatalf("expected task-2 after reconnect, got %q", id)
	}
	select {
	case id := <-completed:
		t.Fatalf("unexpected reprocessed completion %q", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListener_StopsOnContextCancel(t *testing.T) {
	fs := newFakeStream(t)
	pool := NewPool([]string{fs.endpoint()}, time.Second)
	w := pool.Workers()[0]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l := NewListener(w, func(context.Context, string) {}, 10*time.Millisecond, testLogger())
	go func() {
		l.Run(ctx)
		close(done)
	}()

	conn := <-fs.conns
	defer conn.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop on cancellation")
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
