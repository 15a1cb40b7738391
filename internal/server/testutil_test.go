package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"nhooyr.io/websocket"

	"digibattle/internal/creature"
	"digibattle/internal/session"
	"digibattle/internal/storage"
)

// --- Test environment ---

type fixedRoller int

func (f fixedRoller) Roll() int { return int(f) }

// manualScheduler holds deferred opponent moves until the test runs them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, f)
}

func (m *manualScheduler) RunNext(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		t.Fatal("no deferred task queued")
	}
	f := m.tasks[0]
	m.tasks = m.tasks[1:]
	m.mu.Unlock()
	f()
}

type testEnv struct {
	ts    *httptest.Server
	mgr   *session.Manager
	sched *manualScheduler
	store *storage.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roster := creature.NewStarterRegistry()
	sched := &manualScheduler{}
	mgr := session.NewManager(session.Options{
		Roster:          roster,
		Directory:       store,
		Scheduler:       sched,
		Roller:          fixedRoller(45),
		ChallengerDelay: time.Second,
		Logger:          logger,
	})

	webFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body>test</body></html>")},
	}
	srv := New(roster, mgr, store, webFS, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr, sched: sched, store: store}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

// post sends body (may be empty) and returns the status code and the raw
// response body.
func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	resp, err := http.Post(url, "application/json", r)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// postView posts to a session endpoint and decodes the returned view,
// failing unless the status matches want.
func postView(t *testing.T, url, body string, want int) session.View {
	t.Helper()
	status, data := post(t, url, body)
	if status != want {
		t.Fatalf("POST %s: expected %d, got %d: %s", url, want, status, data)
	}
	var v session.View
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func getView(t *testing.T, ts *httptest.Server, id string) session.View {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var v session.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func createSessionViaAPI(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	v := postView(t, ts.URL+"/api/sessions", "", http.StatusCreated)
	if v.SessionID == "" {
		t.Fatal("expected a session id")
	}
	return v.SessionID
}

func sessionURL(ts *httptest.Server, id, action string) string {
	return ts.URL + "/api/sessions/" + id + "/" + action
}

// joinViaAPI takes a fresh session through the join form.
func joinViaAPI(t *testing.T, ts *httptest.Server, id, code string) session.View {
	t.Helper()
	postView(t, sessionURL(ts, id, "join"), "", http.StatusOK)
	body := `{"roomCode":"` + code + `","playerName":"Tai","creature":"Agumon"}`
	return postView(t, sessionURL(ts, id, "rooms/join"), body, http.StatusOK)
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, id string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/sessions/" + id + "/ws"
}

// wsConnect dials a session's WebSocket and consumes the initial state.
// The caller is responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, id string) (*websocket.Conn, session.View) {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, id), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	return conn, readState(t, ctx, conn)
}

// sendWS marshals and sends a typed WebSocket message.
func sendWS(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := WSMessage{Type: msgType}
	if payload != nil {
		p, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		msg.Payload = p
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal ws message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// readWS reads and unmarshals a single WebSocket message.
func readWS(ctx context.Context, conn *websocket.Conn) (WSMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return WSMessage{}, err
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WSMessage{}, err
	}
	return msg, nil
}

// readState reads a WebSocket message and expects it to be a "state" message.
func readState(t *testing.T, ctx context.Context, conn *websocket.Conn) session.View {
	t.Helper()
	msg, err := readWS(ctx, conn)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if msg.Type != "state" {
		t.Fatalf("expected state message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var v session.View
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		t.Fatalf("unmarshal state payload: %v", err)
	}
	return v
}

// readError reads a WebSocket message and expects it to be an "error" message.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	msg, err := readWS(ctx, conn)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var ep errorPayload
	if err := json.Unmarshal(msg.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep.Message
}
